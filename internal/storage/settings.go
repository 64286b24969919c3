package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalidEndpoint rejects remote endpoints that do not use a duplex
// socket scheme. Validation happens before any connection attempt so a bad
// URL leaves no partial state behind.
var ErrInvalidEndpoint = errors.New("endpoint must use the ws:// or wss:// scheme")

// Settings wraps the store keys that hold user-scoped configuration: the
// issued auth token and the remote endpoint URL.
type Settings struct {
	store Store
}

// NewSettings constructs a Settings accessor over the given store.
func NewSettings(store Store) *Settings {
	return &Settings{store: store}
}

// Token returns the persisted auth token, or "" when none was issued yet.
func (s *Settings) Token(ctx context.Context) string {
	value, err := s.store.Get(ctx, KeyAuthToken)
	if err != nil {
		return ""
	}
	return string(value)
}

// SetToken persists the token issued by auth:success so later sessions can
// re-authenticate silently.
func (s *Settings) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.store.Delete(ctx, KeyAuthToken)
	}
	return s.store.Put(ctx, KeyAuthToken, []byte(token))
}

// Endpoint returns the configured remote endpoint, or "" if unset.
func (s *Settings) Endpoint(ctx context.Context) string {
	value, err := s.store.Get(ctx, KeyEndpoint)
	if err != nil {
		return ""
	}
	return string(value)
}

// SetEndpoint validates and persists the remote endpoint URL.
func (s *Settings) SetEndpoint(ctx context.Context, raw string) error {
	if err := ValidateEndpoint(raw); err != nil {
		return err
	}
	return s.store.Put(ctx, KeyEndpoint, []byte(raw))
}

// ValidateEndpoint checks that raw parses as a URL with a websocket scheme.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return ErrInvalidEndpoint
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", raw)
	}
	return nil
}

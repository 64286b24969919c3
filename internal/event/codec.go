package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/planboard/internal/types"
)

// Codec constructs outbound mutation events. Every event gets a freshly
// generated UUID and a wall-clock millisecond timestamp; construction never
// fails for the closed set of payload types used here.
type Codec struct {
	newID func() string
	now   func() time.Time
}

// CodecOption overrides a codec dependency, used by tests for determinism.
type CodecOption func(*Codec)

// WithIDSource replaces the UUID generator.
func WithIDSource(fn func() string) CodecOption {
	return func(c *Codec) { c.newID = fn }
}

// WithClock replaces the wall clock.
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) { c.now = fn }
}

// NewCodec constructs a Codec backed by crypto-grade UUIDs and the system
// clock.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Make builds an event of the given kind around an already-encoded payload.
func (c *Codec) Make(kind ClientType, payload json.RawMessage) ClientEvent {
	return ClientEvent{
		ID:        c.newID(),
		Type:      kind,
		Payload:   payload,
		Timestamp: c.now().UnixMilli(),
	}
}

func (c *Codec) encode(kind ClientType, payload any) ClientEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		// All payload types are plain structs; reaching this indicates a
		// programming error, not bad input.
		panic(fmt.Sprintf("event: encode %s payload: %v", kind, err))
	}
	return c.Make(kind, data)
}

// ContentCreate builds a content:create event carrying the full item.
func (c *Codec) ContentCreate(item types.ContentItem) ClientEvent {
	return c.encode(ClientContentCreate, item)
}

// ContentUpdate builds a content:update event carrying the full item.
func (c *Codec) ContentUpdate(item types.ContentItem) ClientEvent {
	return c.encode(ClientContentUpdate, item)
}

// ContentDelete builds a content:delete event referencing the item id.
func (c *Codec) ContentDelete(id string) ClientEvent {
	return c.encode(ClientContentDelete, DeleteRef{ID: id})
}

// CategoryCreate builds a category:create event.
func (c *Codec) CategoryCreate(cat types.Category) ClientEvent {
	return c.encode(ClientCategoryCreate, cat)
}

// CategoryUpdate builds a category:update event.
func (c *Codec) CategoryUpdate(cat types.Category) ClientEvent {
	return c.encode(ClientCategoryUpdate, cat)
}

// CategoryDelete builds a category:delete event referencing the category id.
func (c *Codec) CategoryDelete(id string) ClientEvent {
	return c.encode(ClientCategoryDelete, DeleteRef{ID: id})
}

// VacationCreate builds a vacation:create event.
func (c *Codec) VacationCreate(v types.VacationPeriod) ClientEvent {
	return c.encode(ClientVacationCreate, v)
}

// VacationDelete builds a vacation:delete event referencing the period id.
func (c *Codec) VacationDelete(id string) ClientEvent {
	return c.encode(ClientVacationDelete, DeleteRef{ID: id})
}

// Login builds an auth:login event from interactive credentials.
func (c *Codec) Login(email, password string) ClientEvent {
	return c.encode(ClientAuthLogin, Credentials{Email: email, Password: password})
}

// TokenLogin builds the silent re-auth variant of auth:login.
func (c *Codec) TokenLogin(token string) ClientEvent {
	return c.encode(ClientAuthLogin, Credentials{Token: token})
}

// Logout builds an auth:logout event.
func (c *Codec) Logout() ClientEvent {
	return c.encode(ClientAuthLogout, struct{}{})
}

// DataRequest asks the server for the full authoritative state.
func (c *Codec) DataRequest() ClientEvent {
	return c.encode(ClientDataRequest, struct{}{})
}

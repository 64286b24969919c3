// Package cache keeps a durable snapshot of the three entity collections so
// the client can bootstrap offline before the channel delivers authoritative
// data, and keep working across reloads thereafter.
package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/example/planboard/internal/storage"
	"github.com/example/planboard/internal/types"
)

// Partial is a partial snapshot update. Nil collections are left untouched
// in the stored snapshot; non-nil ones replace their stored counterpart
// wholesale.
type Partial struct {
	Contents   map[string]types.ContentItem    `json:"contents,omitempty"`
	Categories map[string]types.Category       `json:"categories,omitempty"`
	Vacations  map[string]types.VacationPeriod `json:"vacations,omitempty"`
}

// Snapshots reads and writes the cached snapshot under a single store key.
type Snapshots struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewSnapshots constructs a snapshot cache over the given store.
func NewSnapshots(store storage.Store, logger zerolog.Logger) *Snapshots {
	return &Snapshots{store: store, logger: logger}
}

// Save merges the partial update into the stored snapshot and writes it
// back.
func (c *Snapshots) Save(ctx context.Context, partial Partial) error {
	snapshot := c.Load(ctx)
	if partial.Contents != nil {
		snapshot.Contents = partial.Contents
	}
	if partial.Categories != nil {
		snapshot.Categories = partial.Categories
	}
	if partial.Vacations != nil {
		snapshot.Vacations = partial.Vacations
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, storage.KeySnapshot, data); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist snapshot cache")
		return err
	}
	return nil
}

// SaveAll stores a complete snapshot.
func (c *Snapshots) SaveAll(ctx context.Context, snapshot types.Snapshot) error {
	return c.Save(ctx, Partial{
		Contents:   snapshot.Contents,
		Categories: snapshot.Categories,
		Vacations:  snapshot.Vacations,
	})
}

// Load returns the stored snapshot. A missing or unparsable value degrades
// to empty collections; it never propagates an error to the UI layer.
func (c *Snapshots) Load(ctx context.Context) types.Snapshot {
	data, err := c.store.Get(ctx, storage.KeySnapshot)
	if errors.Is(err, storage.ErrNotFound) {
		return types.NewSnapshot()
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to read snapshot cache; starting empty")
		return types.NewSnapshot()
	}

	var snapshot types.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.Error().Err(err).Msg("corrupt snapshot cache; starting empty")
		return types.NewSnapshot()
	}
	snapshot.Normalize()
	return snapshot
}

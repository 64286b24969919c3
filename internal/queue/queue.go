package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/storage"
)

// Persistent is the durable FIFO of outbound events that have not been
// transmitted yet. The whole queue lives under a single store key as a
// JSON-serialized ordered list, so it survives process restarts and flushes
// in the original enqueue order.
type Persistent struct {
	mu     sync.Mutex
	store  storage.Store
	events []event.ClientEvent
	logger zerolog.Logger
}

// NewPersistent loads any previously stored queue from the store. A corrupt
// stored value degrades to an empty queue rather than failing.
func NewPersistent(ctx context.Context, store storage.Store, logger zerolog.Logger) *Persistent {
	q := &Persistent{store: store, logger: logger}

	data, err := store.Get(ctx, storage.KeyQueue)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		logger.Error().Err(err).Msg("failed to load outbound queue; starting empty")
	default:
		if err := json.Unmarshal(data, &q.events); err != nil {
			logger.Error().Err(err).Msg("corrupt outbound queue; starting empty")
			q.events = nil
		}
	}

	queueDepth.Set(float64(len(q.events)))
	return q
}

// Enqueue appends an event unless an event with the same id is already
// pending. Duplicate ids are silently dropped so retried sends cannot
// accumulate copies.
func (q *Persistent) Enqueue(ctx context.Context, ev event.ClientEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, pending := range q.events {
		if pending.ID == ev.ID {
			return nil
		}
	}

	q.events = append(q.events, ev)
	queueEnqueued.Inc()
	return q.persist(ctx)
}

// Drain returns the pending events oldest-first. The returned slice is a
// copy; the queue itself is not cleared until each event is Removed after a
// successful transmit.
func (q *Persistent) Drain() []event.ClientEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]event.ClientEvent(nil), q.events...)
}

// Remove deletes the event with the given id, preserving the order of the
// rest. Removing an absent id is a no-op.
func (q *Persistent) Remove(ctx context.Context, eventID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, pending := range q.events {
		if pending.ID == eventID {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return q.persist(ctx)
		}
	}
	return nil
}

// Len reports the number of pending events.
func (q *Persistent) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *Persistent) persist(ctx context.Context) error {
	data, err := json.Marshal(q.events)
	if err != nil {
		return err
	}
	if err := q.store.Put(ctx, storage.KeyQueue, data); err != nil {
		q.logger.Error().Err(err).Msg("failed to persist outbound queue")
		return err
	}
	queueDepth.Set(float64(len(q.events)))
	return nil
}

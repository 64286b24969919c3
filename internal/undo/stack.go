// Package undo provides multi-step undo over snapshot captures. Undo is not
// a purely local affair: before local state is restored, the caller-supplied
// hook must synthesize and transmit the inverse mutation events that bring
// the remote authority back to the restored state as well.
package undo

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCapacity bounds the stack; the oldest capture is evicted beyond it.
const DefaultCapacity = 50

// Entry describes one undoable capture.
type Entry struct {
	Label string
	At    time.Time
}

type capture[S any] struct {
	label    string
	at       time.Time
	snapshot S
}

// Config wires a Stack to its owner.
type Config[S any] struct {
	// Capacity bounds the stack; DefaultCapacity when zero.
	Capacity int
	// Current returns a deep copy of the present state.
	Current func() S
	// BeforeRestore runs with the state being left and the state being
	// restored, before local state changes. Its contract is to emit the
	// inverse network events that reconcile the remote authority.
	BeforeRestore func(current, previous S)
	// Restore overwrites local state with the captured snapshot.
	Restore func(S)
	Logger  zerolog.Logger
	now     func() time.Time
}

// Stack records pre-mutation snapshots and replays them on Undo.
//
// Re-entrancy is guarded by an explicit flag raised for the duration of a
// restore rather than a wall-clock window: Push calls made while the
// restoration itself runs are suppressed, and the guard drops as soon as
// Restore returns, with no timing guesswork on slow machines.
type Stack[S any] struct {
	mu        sync.Mutex
	capacity  int
	captures  []capture[S]
	restoring bool
	cfg       Config[S]
}

// NewStack constructs an empty stack.
func NewStack[S any](cfg Config[S]) *Stack[S] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Stack[S]{capacity: cfg.Capacity, cfg: cfg}
}

// Push captures the current state under the given label. It must be called
// before the mutation it protects is applied. Pushes during an in-progress
// undo are suppressed and report false.
func (s *Stack[S]) Push(label string) bool {
	s.mu.Lock()
	if s.restoring {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	snapshot := s.cfg.Current()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restoring {
		return false
	}
	s.captures = append(s.captures, capture[S]{label: label, at: s.cfg.now(), snapshot: snapshot})
	if len(s.captures) > s.capacity {
		s.captures = s.captures[len(s.captures)-s.capacity:]
	}
	return true
}

// Undo pops the most recent capture, emits the inverse events via
// BeforeRestore, and only then restores local state. It reports false when
// the stack is empty or an undo is already in progress.
func (s *Stack[S]) Undo() bool {
	s.mu.Lock()
	if s.restoring || len(s.captures) == 0 {
		s.mu.Unlock()
		return false
	}
	top := s.captures[len(s.captures)-1]
	s.captures = s.captures[:len(s.captures)-1]
	s.restoring = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.restoring = false
		s.mu.Unlock()
	}()

	current := s.cfg.Current()
	if s.cfg.BeforeRestore != nil {
		s.cfg.BeforeRestore(current, top.snapshot)
	}
	s.cfg.Restore(top.snapshot)

	s.cfg.Logger.Info().Str("label", top.label).Time("captured_at", top.at).Msg("undo applied")
	return true
}

// Len reports the number of captures on the stack.
func (s *Stack[S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

// Entries lists the captures oldest-first, for history display.
func (s *Stack[S]) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.captures))
	for i, c := range s.captures {
		out[i] = Entry{Label: c.label, At: c.at}
	}
	return out
}

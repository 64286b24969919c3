// Package planner is the client core of the content-planning calendar: an
// explicit store object that mutates the three entity collections
// optimistically, transmits the matching mutation events, keeps the durable
// snapshot cache in step, and supports multi-step undo that reconciles the
// remote authority with inverse events before restoring local state.
//
// Every mutation, whether a user action or an inbound remote event, runs
// through the same update-then-persist sequence, so in-memory state never
// diverges from the cache across reloads.
package planner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/planboard/internal/cache"
	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/reconcile"
	"github.com/example/planboard/internal/types"
	"github.com/example/planboard/internal/undo"
)

// Sink transmits one outbound event, or queues it while offline. The
// transport channel satisfies it through SinkFunc.
type Sink interface {
	Send(ev event.ClientEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event.ClientEvent)

// Send implements Sink.
func (f SinkFunc) Send(ev event.ClientEvent) { f(ev) }

// Notifier carries the UI callbacks fired after a collection changes. Nil
// callbacks are skipped.
type Notifier struct {
	ContentsChanged   func()
	CategoriesChanged func()
	VacationsChanged  func()
	ReferenceChanged  func()
}

// Service owns the three mutable collections plus the read-only reference
// data delivered by data:initial.
type Service struct {
	mu        sync.Mutex
	state     types.Snapshot
	templates map[string]types.Template
	series    map[string]types.Series

	codec     *event.Codec
	sink      Sink
	snapshots *cache.Snapshots
	engine    *reconcile.Engine
	history   *undo.Stack[types.Snapshot]
	notify    Notifier
	logger    zerolog.Logger
	newID     func() string

	undoCapacity int
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithUndoCapacity bounds the undo stack.
func WithUndoCapacity(n int) ServiceOption {
	return func(s *Service) { s.undoCapacity = n }
}

// WithIDSource replaces the id generator for locally created entities.
func WithIDSource(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// NewService bootstraps the service from the cached snapshot. localActor is
// consulted per inbound event so echoes of this session's own mutations are
// discarded once the actor id is known.
func NewService(ctx context.Context, codec *event.Codec, sink Sink, snapshots *cache.Snapshots, localActor func() types.ActorID, notify Notifier, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		state:     snapshots.Load(ctx),
		templates: make(map[string]types.Template),
		series:    make(map[string]types.Series),
		codec:     codec,
		sink:      sink,
		snapshots: snapshots,
		engine:    reconcile.NewEngine(localActor, logger),
		notify:    notify,
		logger:    logger,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = undo.NewStack(undo.Config[types.Snapshot]{
		Capacity:      s.undoCapacity,
		Current:       s.currentSnapshot,
		BeforeRestore: s.emitInverse,
		Restore:       s.restoreSnapshot,
		Logger:        logger,
	})
	return s
}

// Snapshot returns a deep copy of the current collections.
func (s *Service) Snapshot() types.Snapshot {
	return s.currentSnapshot()
}

// Content looks up one content item.
func (s *Service) Content(id string) (types.ContentItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.state.Contents[id]
	return item, ok
}

// Category looks up one category.
func (s *Service) Category(id string) (types.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.state.Categories[id]
	return cat, ok
}

// Vacation looks up one vacation period.
func (s *Service) Vacation(id string) (types.VacationPeriod, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vac, ok := s.state.Vacations[id]
	return vac, ok
}

// Templates lists the server-provided templates, sorted by id.
func (s *Service) Templates() []types.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Series lists the server-provided series definitions, sorted by id.
func (s *Service) Series() []types.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Series, 0, len(s.series))
	for _, sd := range s.series {
		out = append(out, sd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UndoHistory lists the recorded undo captures oldest-first.
func (s *Service) UndoHistory() []undo.Entry {
	return s.history.Entries()
}

// Undo reverts the most recent user mutation. The inverse network events go
// out before local state is restored; an empty history reports false.
func (s *Service) Undo() bool {
	return s.history.Undo()
}

// CreateContent inserts a new content item and transmits its create event.
// A missing id is generated. The owning category must exist; a linked
// content id may dangle (the UI ignores dangling links), but when the link
// target exists the link is made symmetric.
func (s *Service) CreateContent(item types.ContentItem) (types.ContentItem, error) {
	if item.ID == "" {
		item.ID = s.newID()
	}
	if item.CategoryID == "" {
		return types.ContentItem{}, fmt.Errorf("content %q has no category", item.Title)
	}

	s.mu.Lock()
	if _, exists := s.state.Contents[item.ID]; exists {
		s.mu.Unlock()
		return types.ContentItem{}, fmt.Errorf("content %s already exists", item.ID)
	}
	if _, exists := s.state.Categories[item.CategoryID]; !exists {
		s.mu.Unlock()
		return types.ContentItem{}, fmt.Errorf("unknown category %s", item.CategoryID)
	}
	s.mu.Unlock()

	s.history.Push("create " + item.Title)

	s.mu.Lock()
	events := s.insertContentLocked(item)
	s.persistLocked(cache.Partial{Contents: s.state.Contents})
	s.mu.Unlock()

	s.send(events...)
	s.notifyContents()
	return item, nil
}

// UpdateContent replaces an existing item, keeping bidirectional links
// symmetric: re-pointing the link clears the old partner and links the new
// one, each with its own update event.
func (s *Service) UpdateContent(item types.ContentItem) error {
	s.mu.Lock()
	previous, exists := s.state.Contents[item.ID]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("unknown content %s", item.ID)
	}

	s.history.Push("edit " + item.Title)

	s.mu.Lock()
	var events []event.ClientEvent
	if previous.LinkedContentID != item.LinkedContentID {
		events = append(events, s.relinkLocked(previous, item)...)
	}
	s.state.Contents[item.ID] = item
	events = append(events, s.codec.ContentUpdate(item))
	s.persistLocked(cache.Partial{Contents: s.state.Contents})
	s.mu.Unlock()

	s.send(events...)
	s.notifyContents()
	return nil
}

// DeleteContent removes an item, nulls out every item that linked to it
// (each with an update event), and transmits the delete event.
func (s *Service) DeleteContent(id string) error {
	s.mu.Lock()
	item, exists := s.state.Contents[id]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("unknown content %s", id)
	}

	s.history.Push("delete " + item.Title)

	s.mu.Lock()
	events := s.unlinkBackrefsLocked(id)
	delete(s.state.Contents, id)
	events = append(events, s.codec.ContentDelete(id))
	s.persistLocked(cache.Partial{Contents: s.state.Contents})
	s.mu.Unlock()

	s.send(events...)
	s.notifyContents()
	return nil
}

// CreateCategory inserts a new category.
func (s *Service) CreateCategory(cat types.Category) (types.Category, error) {
	if cat.ID == "" {
		cat.ID = s.newID()
	}
	if cat.Name == "" {
		return types.Category{}, fmt.Errorf("category %s has no name", cat.ID)
	}
	if !types.ValidColor(cat.Color) {
		return types.Category{}, fmt.Errorf("category color %q is not an HSL triple", cat.Color)
	}

	s.mu.Lock()
	if _, exists := s.state.Categories[cat.ID]; exists {
		s.mu.Unlock()
		return types.Category{}, fmt.Errorf("category %s already exists", cat.ID)
	}
	s.mu.Unlock()

	s.history.Push("create category " + cat.Name)

	s.mu.Lock()
	s.state.Categories[cat.ID] = cat
	s.persistLocked(cache.Partial{Categories: s.state.Categories})
	s.mu.Unlock()

	s.send(s.codec.CategoryCreate(cat))
	s.notifyCategories()
	return cat, nil
}

// UpdateCategory replaces an existing category.
func (s *Service) UpdateCategory(cat types.Category) error {
	s.mu.Lock()
	_, exists := s.state.Categories[cat.ID]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("unknown category %s", cat.ID)
	}
	if !types.ValidColor(cat.Color) {
		return fmt.Errorf("category color %q is not an HSL triple", cat.Color)
	}

	s.history.Push("edit category " + cat.Name)

	s.mu.Lock()
	s.state.Categories[cat.ID] = cat
	s.persistLocked(cache.Partial{Categories: s.state.Categories})
	s.mu.Unlock()

	s.send(s.codec.CategoryUpdate(cat))
	s.notifyCategories()
	return nil
}

// DeleteCategory removes a category and cascades to every content item it
// owns: each casualty is removed locally and gets its own delete event
// before the category's delete event goes out.
func (s *Service) DeleteCategory(id string) error {
	s.mu.Lock()
	cat, exists := s.state.Categories[id]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("unknown category %s", id)
	}

	s.history.Push("delete category " + cat.Name)

	s.mu.Lock()
	var casualties []string
	for contentID, item := range s.state.Contents {
		if item.CategoryID == id {
			casualties = append(casualties, contentID)
		}
	}
	sort.Strings(casualties)

	var events []event.ClientEvent
	for _, contentID := range casualties {
		events = append(events, s.unlinkBackrefsLocked(contentID)...)
		delete(s.state.Contents, contentID)
		events = append(events, s.codec.ContentDelete(contentID))
	}
	delete(s.state.Categories, id)
	events = append(events, s.codec.CategoryDelete(id))
	s.persistLocked(cache.Partial{Contents: s.state.Contents, Categories: s.state.Categories})
	s.mu.Unlock()

	s.send(events...)
	s.notifyContents()
	s.notifyCategories()
	return nil
}

// CreateVacation inserts a new vacation period.
func (s *Service) CreateVacation(vac types.VacationPeriod) (types.VacationPeriod, error) {
	if vac.ID == "" {
		vac.ID = s.newID()
	}
	if vac.EndDate.Before(vac.StartDate) {
		return types.VacationPeriod{}, fmt.Errorf("vacation %s ends before it starts", vac.ID)
	}

	s.mu.Lock()
	if _, exists := s.state.Vacations[vac.ID]; exists {
		s.mu.Unlock()
		return types.VacationPeriod{}, fmt.Errorf("vacation %s already exists", vac.ID)
	}
	s.mu.Unlock()

	s.history.Push("create vacation " + vac.Label)

	s.mu.Lock()
	s.state.Vacations[vac.ID] = vac
	s.persistLocked(cache.Partial{Vacations: s.state.Vacations})
	s.mu.Unlock()

	s.send(s.codec.VacationCreate(vac))
	s.notifyVacations()
	return vac, nil
}

// UpdateVacation replaces a vacation period. The wire has no vacation
// update kind, so the change is transmitted as delete then create of the
// same id, in that order.
func (s *Service) UpdateVacation(vac types.VacationPeriod) error {
	s.mu.Lock()
	_, exists := s.state.Vacations[vac.ID]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("unknown vacation %s", vac.ID)
	}
	if vac.EndDate.Before(vac.StartDate) {
		return fmt.Errorf("vacation %s ends before it starts", vac.ID)
	}

	s.history.Push("edit vacation " + vac.Label)

	s.mu.Lock()
	s.state.Vacations[vac.ID] = vac
	s.persistLocked(cache.Partial{Vacations: s.state.Vacations})
	s.mu.Unlock()

	s.send(s.codec.VacationDelete(vac.ID), s.codec.VacationCreate(vac))
	s.notifyVacations()
	return nil
}

// DeleteVacation removes a vacation period.
func (s *Service) DeleteVacation(id string) error {
	s.mu.Lock()
	vac, exists := s.state.Vacations[id]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("unknown vacation %s", id)
	}

	s.history.Push("delete vacation " + vac.Label)

	s.mu.Lock()
	delete(s.state.Vacations, id)
	s.persistLocked(cache.Partial{Vacations: s.state.Vacations})
	s.mu.Unlock()

	s.send(s.codec.VacationDelete(id))
	s.notifyVacations()
	return nil
}

// ApplyRemote reconciles one inbound event into the local collections. It
// shares the planner's mutate-then-persist path with the user operations;
// remote mutations are not undoable.
func (s *Service) ApplyRemote(ev event.ServerEvent) {
	s.mu.Lock()
	res := s.engine.Apply(&s.state, ev)
	if !res.Applied {
		s.mu.Unlock()
		return
	}
	if res.Templates != nil {
		s.templates = make(map[string]types.Template, len(res.Templates))
		for _, t := range res.Templates {
			s.templates[t.ID] = t
		}
		s.series = make(map[string]types.Series, len(res.Series))
		for _, sd := range res.Series {
			s.series[sd.ID] = sd
		}
	}
	partial := cache.Partial{}
	if res.Contents {
		partial.Contents = s.state.Contents
	}
	if res.Categories {
		partial.Categories = s.state.Categories
	}
	if res.Vacations {
		partial.Vacations = s.state.Vacations
	}
	s.persistLocked(partial)
	s.mu.Unlock()

	if res.Contents {
		s.notifyContents()
	}
	if res.Categories {
		s.notifyCategories()
	}
	if res.Vacations {
		s.notifyVacations()
	}
	if res.Templates != nil && s.notify.ReferenceChanged != nil {
		s.notify.ReferenceChanged()
	}
}

package planner

import (
	"context"
	"sort"

	"github.com/example/planboard/internal/cache"
	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/types"
	"github.com/example/planboard/internal/undo"
)

// insertContentLocked stores the item, makes an existing link target point
// back, and returns the events to transmit. Callers must hold s.mu.
func (s *Service) insertContentLocked(item types.ContentItem) []event.ClientEvent {
	events := s.claimLinkLocked(item.ID, item.LinkedContentID)
	s.state.Contents[item.ID] = item
	events = append(events, s.codec.ContentCreate(item))
	return events
}

// relinkLocked moves a symmetric link from the previous target to the new
// one. Dangling ids are left alone. Callers must hold s.mu.
func (s *Service) relinkLocked(previous, next types.ContentItem) []event.ClientEvent {
	var events []event.ClientEvent
	if old, ok := s.state.Contents[previous.LinkedContentID]; ok && previous.LinkedContentID != "" {
		if old.LinkedContentID == previous.ID {
			old.LinkedContentID = ""
			s.state.Contents[old.ID] = old
			events = append(events, s.codec.ContentUpdate(old))
		}
	}
	events = append(events, s.claimLinkLocked(next.ID, next.LinkedContentID)...)
	return events
}

// claimLinkLocked points the target's back-link at the claimant. A link pair
// is exclusive: when the target was already paired with some other item,
// that item's link is cleared first so no one-way link is left behind. Each
// touched item gets its own update event. Callers must hold s.mu.
func (s *Service) claimLinkLocked(claimantID, targetID string) []event.ClientEvent {
	if targetID == "" {
		return nil
	}
	target, ok := s.state.Contents[targetID]
	if !ok {
		return nil
	}

	var events []event.ClientEvent
	if partner, ok := s.state.Contents[target.LinkedContentID]; ok &&
		target.LinkedContentID != "" && target.LinkedContentID != claimantID &&
		partner.LinkedContentID == targetID {
		partner.LinkedContentID = ""
		s.state.Contents[partner.ID] = partner
		events = append(events, s.codec.ContentUpdate(partner))
	}
	target.LinkedContentID = claimantID
	s.state.Contents[target.ID] = target
	events = append(events, s.codec.ContentUpdate(target))
	return events
}

// unlinkBackrefsLocked nulls the link of every item pointing at id and
// returns their update events in deterministic order. Callers must hold
// s.mu.
func (s *Service) unlinkBackrefsLocked(id string) []event.ClientEvent {
	var linked []string
	for contentID, item := range s.state.Contents {
		if contentID != id && item.LinkedContentID == id {
			linked = append(linked, contentID)
		}
	}
	sort.Strings(linked)

	var events []event.ClientEvent
	for _, contentID := range linked {
		item := s.state.Contents[contentID]
		item.LinkedContentID = ""
		s.state.Contents[contentID] = item
		events = append(events, s.codec.ContentUpdate(item))
	}
	return events
}

// persistLocked writes the given collections to the durable cache. Callers
// must hold s.mu; persistence failures are logged, not propagated, so a
// broken disk cannot take down the in-memory session.
func (s *Service) persistLocked(partial cache.Partial) {
	if err := s.snapshots.Save(context.Background(), partial); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist snapshot")
	}
}

func (s *Service) send(events ...event.ClientEvent) {
	for _, ev := range events {
		s.sink.Send(ev)
	}
}

func (s *Service) notifyContents() {
	if s.notify.ContentsChanged != nil {
		s.notify.ContentsChanged()
	}
}

func (s *Service) notifyCategories() {
	if s.notify.CategoriesChanged != nil {
		s.notify.CategoriesChanged()
	}
}

func (s *Service) notifyVacations() {
	if s.notify.VacationsChanged != nil {
		s.notify.VacationsChanged()
	}
}

// currentSnapshot is the undo stack's state accessor.
func (s *Service) currentSnapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// emitInverse synthesizes and transmits the minimal inverse events that
// bring the remote authority from the current state back to the previous
// one. It runs before restoreSnapshot, so the remote store and the local
// restore observe the same transition.
func (s *Service) emitInverse(current, previous types.Snapshot) {
	d := undo.DiffSnapshots(current, previous)
	if d.Empty() {
		return
	}

	// Content items reference their category, so removals go leaf-first
	// (content deletes before category deletes) and additions root-first
	// (category creates before content creates). A remote that validates
	// categoryId accepts the sequence either way around.
	var events []event.ClientEvent
	for _, change := range d.Contents {
		if change.Op == undo.OpDelete {
			events = append(events, s.codec.ContentDelete(change.ID))
		}
	}
	for _, change := range d.Categories {
		switch change.Op {
		case undo.OpDelete:
			events = append(events, s.codec.CategoryDelete(change.ID))
		case undo.OpCreate:
			events = append(events, s.codec.CategoryCreate(change.Category))
		case undo.OpUpdate:
			events = append(events, s.codec.CategoryUpdate(change.Category))
		}
	}
	for _, change := range d.Contents {
		switch change.Op {
		case undo.OpCreate:
			events = append(events, s.codec.ContentCreate(change.Item))
		case undo.OpUpdate:
			events = append(events, s.codec.ContentUpdate(change.Item))
		}
	}
	for _, change := range d.Vacations {
		switch change.Op {
		case undo.OpDelete:
			events = append(events, s.codec.VacationDelete(change.ID))
		case undo.OpCreate:
			events = append(events, s.codec.VacationCreate(change.Vacation))
		}
	}
	s.send(events...)
}

// restoreSnapshot overwrites local state with an undo capture and persists
// it, then fires every change notification.
func (s *Service) restoreSnapshot(snapshot types.Snapshot) {
	s.mu.Lock()
	s.state = snapshot.Clone()
	if err := s.snapshots.SaveAll(context.Background(), s.state); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist snapshot")
	}
	s.mu.Unlock()

	s.notifyContents()
	s.notifyCategories()
	s.notifyVacations()
}

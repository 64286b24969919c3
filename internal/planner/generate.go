package planner

import (
	"fmt"

	"github.com/example/planboard/internal/cache"
	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/types"
)

// defaultCadenceDays spaces generated series items when the series itself
// does not specify a cadence.
const defaultCadenceDays = 7

// GenerateSeries creates count content items from a series definition,
// starting at the given day and spaced by the series cadence. The whole
// batch is one undo step.
func (s *Service) GenerateSeries(seriesID string, from types.Day, count int) ([]types.ContentItem, error) {
	if count <= 0 {
		return nil, fmt.Errorf("series batch size must be positive, got %d", count)
	}

	s.mu.Lock()
	def, ok := s.series[seriesID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown series %s", seriesID)
	}
	if def.CategoryID == "" {
		return nil, fmt.Errorf("series %s has no category", seriesID)
	}

	cadence := def.CadenceDay
	if cadence <= 0 {
		cadence = defaultCadenceDays
	}

	s.history.Push("generate series " + def.Name)

	s.mu.Lock()
	var events []event.ClientEvent
	items := make([]types.ContentItem, 0, count)
	for i := 0; i < count; i++ {
		item := types.ContentItem{
			ID:         s.newID(),
			Title:      fmt.Sprintf("%s #%d", def.Name, i+1),
			CategoryID: def.CategoryID,
			Date:       from.AddDays(i * cadence),
			SeriesID:   def.ID,
			TemplateID: def.TemplateID,
		}
		events = append(events, s.insertContentLocked(item)...)
		items = append(items, item)
	}
	s.persistLocked(cache.Partial{Contents: s.state.Contents})
	s.mu.Unlock()

	s.send(events...)
	s.notifyContents()
	return items, nil
}

// GenerateShorts derives count short-form items from a parent content item,
// on the parent's date and in its category, each carrying the parent id.
// The whole batch is one undo step.
func (s *Service) GenerateShorts(parentID string, count int) ([]types.ContentItem, error) {
	if count <= 0 {
		return nil, fmt.Errorf("shorts batch size must be positive, got %d", count)
	}

	s.mu.Lock()
	parent, ok := s.state.Contents[parentID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown content %s", parentID)
	}

	s.history.Push("generate shorts for " + parent.Title)

	s.mu.Lock()
	var events []event.ClientEvent
	items := make([]types.ContentItem, 0, count)
	for i := 0; i < count; i++ {
		item := types.ContentItem{
			ID:          s.newID(),
			Title:       fmt.Sprintf("%s (short %d)", parent.Title, i+1),
			CategoryID:  parent.CategoryID,
			Date:        parent.Date,
			ContentType: "short",
			ParentID:    parent.ID,
		}
		events = append(events, s.insertContentLocked(item)...)
		items = append(items, item)
	}
	s.persistLocked(cache.Partial{Contents: s.state.Contents})
	s.mu.Unlock()

	s.send(events...)
	s.notifyContents()
	return items, nil
}

// Package reconcile applies inbound server events to the local collections.
// Events are applied strictly in arrival order with no reordering, so the
// last applied event always wins for a given entity id.
package reconcile

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/types"
)

// Result reports what an Apply call did to the snapshot. The planner uses
// the flags to persist the cache and fire the matching UI notifications.
type Result struct {
	Applied    bool
	Contents   bool
	Categories bool
	Vacations  bool

	// Templates and Series are non-nil only after data:initial, which is
	// the sole source of these read-only reference collections.
	Templates []types.Template
	Series    []types.Series
}

// Engine mutates a snapshot according to one inbound event at a time.
type Engine struct {
	localActor func() types.ActorID
	logger     zerolog.Logger
}

// NewEngine constructs an engine. localActor is consulted per event because
// the actor id only becomes known after authentication.
func NewEngine(localActor func() types.ActorID, logger zerolog.Logger) *Engine {
	return &Engine{localActor: localActor, logger: logger}
}

// Apply executes the event's effect on the snapshot. Events originated by
// the local actor are discarded before any mutation: the optimistic local
// apply already happened, and applying the echo would double it. Malformed
// payloads are logged and dropped; they never propagate.
func (e *Engine) Apply(snapshot *types.Snapshot, ev event.ServerEvent) Result {
	if actor := e.localActor(); actor != "" && ev.UserID == actor {
		selfFiltered.Inc()
		e.logger.Debug().Str("event", ev.ID).Str("type", string(ev.Type)).Msg("discarding self-origin echo")
		return Result{}
	}

	var res Result
	switch ev.Type {
	case event.ServerContentCreated:
		var item types.ContentItem
		if !e.decode(ev, &item) {
			return Result{}
		}
		if _, exists := snapshot.Contents[item.ID]; exists {
			return Result{}
		}
		snapshot.Contents[item.ID] = item
		res = Result{Applied: true, Contents: true}

	case event.ServerContentUpdated:
		var item types.ContentItem
		if !e.decode(ev, &item) {
			return Result{}
		}
		// An update for an unknown id is treated as a create.
		snapshot.Contents[item.ID] = item
		res = Result{Applied: true, Contents: true}

	case event.ServerContentDeleted:
		var ref event.DeleteRef
		if !e.decode(ev, &ref) {
			return Result{}
		}
		if _, exists := snapshot.Contents[ref.ID]; !exists {
			return Result{}
		}
		delete(snapshot.Contents, ref.ID)
		res = Result{Applied: true, Contents: true}

	case event.ServerCategoryCreated:
		var cat types.Category
		if !e.decode(ev, &cat) {
			return Result{}
		}
		if _, exists := snapshot.Categories[cat.ID]; exists {
			return Result{}
		}
		snapshot.Categories[cat.ID] = cat
		res = Result{Applied: true, Categories: true}

	case event.ServerCategoryUpdated:
		var cat types.Category
		if !e.decode(ev, &cat) {
			return Result{}
		}
		snapshot.Categories[cat.ID] = cat
		res = Result{Applied: true, Categories: true}

	case event.ServerCategoryDeleted:
		var ref event.DeleteRef
		if !e.decode(ev, &ref) {
			return Result{}
		}
		if _, exists := snapshot.Categories[ref.ID]; !exists {
			return Result{}
		}
		delete(snapshot.Categories, ref.ID)
		res = Result{Applied: true, Categories: true}

	case event.ServerVacationCreated:
		var vac types.VacationPeriod
		if !e.decode(ev, &vac) {
			return Result{}
		}
		if _, exists := snapshot.Vacations[vac.ID]; exists {
			return Result{}
		}
		snapshot.Vacations[vac.ID] = vac
		res = Result{Applied: true, Vacations: true}

	case event.ServerVacationDeleted:
		var ref event.DeleteRef
		if !e.decode(ev, &ref) {
			return Result{}
		}
		if _, exists := snapshot.Vacations[ref.ID]; !exists {
			return Result{}
		}
		delete(snapshot.Vacations, ref.ID)
		res = Result{Applied: true, Vacations: true}

	case event.ServerDataInitial:
		var initial event.InitialData
		if !e.decode(ev, &initial) {
			return Result{}
		}
		snapshot.Contents = make(map[string]types.ContentItem, len(initial.Contents))
		for _, item := range initial.Contents {
			snapshot.Contents[item.ID] = item
		}
		snapshot.Categories = make(map[string]types.Category, len(initial.Categories))
		for _, cat := range initial.Categories {
			snapshot.Categories[cat.ID] = cat
		}
		snapshot.Vacations = make(map[string]types.VacationPeriod, len(initial.Vacations))
		for _, vac := range initial.Vacations {
			snapshot.Vacations[vac.ID] = vac
		}
		res = Result{
			Applied:    true,
			Contents:   true,
			Categories: true,
			Vacations:  true,
			Templates:  initial.Templates,
			Series:     initial.Series,
		}
		if res.Templates == nil {
			res.Templates = []types.Template{}
		}
		if res.Series == nil {
			res.Series = []types.Series{}
		}

	default:
		e.logger.Warn().Str("type", string(ev.Type)).Msg("ignoring unknown inbound event type")
		return Result{}
	}

	appliedTotal.WithLabelValues(string(ev.Type)).Inc()
	return res
}

func (e *Engine) decode(ev event.ServerEvent, into any) bool {
	if err := json.Unmarshal(ev.Payload, into); err != nil {
		e.logger.Warn().Err(err).Str("event", ev.ID).Str("type", string(ev.Type)).Msg("dropping event with malformed payload")
		return false
	}
	return true
}

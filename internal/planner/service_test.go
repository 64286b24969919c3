package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/planboard/internal/cache"
	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/storage"
	"github.com/example/planboard/internal/types"
)

type fakeSink struct {
	events []event.ClientEvent
}

func (f *fakeSink) Send(ev event.ClientEvent) { f.events = append(f.events, ev) }

func (f *fakeSink) reset() { f.events = nil }

func (f *fakeSink) ofType(kind event.ClientType) []event.ClientEvent {
	var out []event.ClientEvent
	for _, ev := range f.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func decodeContent(t *testing.T, ev event.ClientEvent) types.ContentItem {
	t.Helper()
	var item types.ContentItem
	if err := json.Unmarshal(ev.Payload, &item); err != nil {
		t.Fatalf("decode content payload: %v", err)
	}
	return item
}

func decodeRef(t *testing.T, ev event.ClientEvent) event.DeleteRef {
	t.Helper()
	var ref event.DeleteRef
	if err := json.Unmarshal(ev.Payload, &ref); err != nil {
		t.Fatalf("decode delete ref: %v", err)
	}
	return ref
}

func newService(t *testing.T) (*Service, *fakeSink, *cache.Snapshots) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	snaps := cache.NewSnapshots(storage.NewMemory(), logger)
	sink := &fakeSink{}

	var n int
	svc := NewService(context.Background(), event.NewCodec(), sink, snaps,
		func() types.ActorID { return "me" }, Notifier{}, logger,
		WithIDSource(func() string {
			n++
			return fmt.Sprintf("gen-%d", n)
		}))

	if _, err := svc.CreateCategory(types.Category{ID: "cat1", Name: "Main", Color: "210 80% 55%"}); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	sink.reset()
	return svc, sink, snaps
}

func TestUndoAfterUpdateEmitsSingleInverseUpdate(t *testing.T) {
	svc, sink, _ := newService(t)

	item := types.ContentItem{ID: "x", Title: "Ep1", CategoryID: "cat1", Date: types.NewDay(2024, time.January, 1)}
	if _, err := svc.CreateContent(item); err != nil {
		t.Fatalf("create: %v", err)
	}

	item.Title = "Ep2"
	if err := svc.UpdateContent(item); err != nil {
		t.Fatalf("update: %v", err)
	}
	sink.reset()

	if !svc.Undo() {
		t.Fatal("undo failed")
	}

	got, ok := svc.Content("x")
	if !ok || got.Title != "Ep1" {
		t.Fatalf("expected title Ep1 after undo, got %+v", got)
	}

	updates := sink.ofType(event.ClientContentUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected exactly one inverse update, got %d (%+v)", len(updates), sink.events)
	}
	if decodeContent(t, updates[0]).Title != "Ep1" {
		t.Fatal("inverse update must carry the restored title")
	}
	if len(sink.events) != 1 {
		t.Fatalf("no other events expected during undo, got %+v", sink.events)
	}
}

func TestUndoAfterCreateEmitsDelete(t *testing.T) {
	svc, sink, _ := newService(t)

	if _, err := svc.CreateContent(types.ContentItem{ID: "x", Title: "Ep1", CategoryID: "cat1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	sink.reset()

	if !svc.Undo() {
		t.Fatal("undo failed")
	}
	if _, ok := svc.Content("x"); ok {
		t.Fatal("undone create must remove the item")
	}

	deletes := sink.ofType(event.ClientContentDelete)
	if len(deletes) != 1 || decodeRef(t, deletes[0]).ID != "x" {
		t.Fatalf("expected one inverse delete for x, got %+v", sink.events)
	}
}

func TestUndoAfterDeleteRecreatesItem(t *testing.T) {
	svc, sink, _ := newService(t)

	original := types.ContentItem{ID: "x", Title: "Ep1", CategoryID: "cat1", Date: types.NewDay(2024, time.March, 5), Notes: "draft"}
	if _, err := svc.CreateContent(original); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteContent("x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sink.reset()

	if !svc.Undo() {
		t.Fatal("undo failed")
	}
	restored, ok := svc.Content("x")
	if !ok || !reflect.DeepEqual(restored, original) {
		t.Fatalf("expected restored item %+v, got %+v", original, restored)
	}

	creates := sink.ofType(event.ClientContentCreate)
	if len(creates) != 1 || !reflect.DeepEqual(decodeContent(t, creates[0]), original) {
		t.Fatalf("expected one inverse create, got %+v", sink.events)
	}
}

func TestUndoEmptyStackReportsFalse(t *testing.T) {
	logger := zerolog.New(io.Discard)
	snaps := cache.NewSnapshots(storage.NewMemory(), logger)
	svc := NewService(context.Background(), event.NewCodec(), &fakeSink{}, snaps,
		func() types.ActorID { return "me" }, Notifier{}, logger)

	if svc.Undo() {
		t.Fatal("undo with empty history must report false")
	}
}

func TestCategoryDeleteCascades(t *testing.T) {
	svc, sink, _ := newService(t)

	if _, err := svc.CreateCategory(types.Category{ID: "cat2", Name: "Other", Color: "10 50% 40%"}); err != nil {
		t.Fatalf("second category: %v", err)
	}
	for i, categoryID := range []string{"cat1", "cat1", "cat2"} {
		item := types.ContentItem{ID: fmt.Sprintf("c%d", i), Title: fmt.Sprintf("Item %d", i), CategoryID: categoryID}
		if _, err := svc.CreateContent(item); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	sink.reset()

	if err := svc.DeleteCategory("cat1"); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	snap := svc.Snapshot()
	if _, ok := snap.Categories["cat1"]; ok {
		t.Fatal("category survived delete")
	}
	for _, id := range []string{"c0", "c1"} {
		if _, ok := snap.Contents[id]; ok {
			t.Fatalf("content %s survived cascade", id)
		}
	}
	if _, ok := snap.Contents["c2"]; !ok {
		t.Fatal("content of other category was swept up")
	}

	contentDeletes := sink.ofType(event.ClientContentDelete)
	if len(contentDeletes) != 2 {
		t.Fatalf("expected 2 cascade delete events, got %d", len(contentDeletes))
	}
	if got := decodeRef(t, contentDeletes[0]).ID; got != "c0" {
		t.Fatalf("expected deterministic cascade order, got %s first", got)
	}
	if len(sink.ofType(event.ClientCategoryDelete)) != 1 {
		t.Fatalf("expected one category delete event, got %+v", sink.events)
	}
}

func TestBidirectionalLinkSymmetry(t *testing.T) {
	svc, sink, _ := newService(t)

	if _, err := svc.CreateContent(types.ContentItem{ID: "b", Title: "B", CategoryID: "cat1"}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	sink.reset()

	if _, err := svc.CreateContent(types.ContentItem{ID: "a", Title: "A", CategoryID: "cat1", LinkedContentID: "b"}); err != nil {
		t.Fatalf("create a: %v", err)
	}

	b, _ := svc.Content("b")
	if b.LinkedContentID != "a" {
		t.Fatalf("expected b to link back to a, got %q", b.LinkedContentID)
	}
	if len(sink.ofType(event.ClientContentUpdate)) != 1 {
		t.Fatalf("expected an update event for the back link, got %+v", sink.events)
	}

	// Clearing a's link clears b's too.
	a, _ := svc.Content("a")
	a.LinkedContentID = ""
	if err := svc.UpdateContent(a); err != nil {
		t.Fatalf("clear link: %v", err)
	}
	b, _ = svc.Content("b")
	if b.LinkedContentID != "" {
		t.Fatalf("expected b link cleared, got %q", b.LinkedContentID)
	}
}

func TestDeleteContentNullsBackLinks(t *testing.T) {
	svc, _, _ := newService(t)

	if _, err := svc.CreateContent(types.ContentItem{ID: "b", Title: "B", CategoryID: "cat1"}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := svc.CreateContent(types.ContentItem{ID: "a", Title: "A", CategoryID: "cat1", LinkedContentID: "b"}); err != nil {
		t.Fatalf("create a: %v", err)
	}

	if err := svc.DeleteContent("a"); err != nil {
		t.Fatalf("delete a: %v", err)
	}
	b, _ := svc.Content("b")
	if b.LinkedContentID != "" {
		t.Fatalf("expected dangling link nulled, got %q", b.LinkedContentID)
	}
}

func TestVacationUpdateIsDeleteThenCreate(t *testing.T) {
	svc, sink, _ := newService(t)

	vac := types.VacationPeriod{ID: "v", StartDate: types.NewDay(2024, time.July, 1), EndDate: types.NewDay(2024, time.July, 14), Label: "Summer"}
	if _, err := svc.CreateVacation(vac); err != nil {
		t.Fatalf("create vacation: %v", err)
	}
	sink.reset()

	vac.EndDate = types.NewDay(2024, time.July, 21)
	if err := svc.UpdateVacation(vac); err != nil {
		t.Fatalf("update vacation: %v", err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("expected exactly 2 events, got %+v", sink.events)
	}
	if sink.events[0].Type != event.ClientVacationDelete {
		t.Fatalf("delete must come first, got %s", sink.events[0].Type)
	}
	if sink.events[1].Type != event.ClientVacationCreate {
		t.Fatalf("create must come second, got %s", sink.events[1].Type)
	}
	if decodeRef(t, sink.events[0]).ID != "v" {
		t.Fatal("delete must reference the same id")
	}
}

func TestEveryMutationPersistsToCache(t *testing.T) {
	svc, _, snaps := newService(t)

	if _, err := svc.CreateContent(types.ContentItem{ID: "x", Title: "Ep1", CategoryID: "cat1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	stored := snaps.Load(context.Background())
	if _, ok := stored.Contents["x"]; !ok {
		t.Fatal("local create not persisted to cache")
	}

	remote := types.ContentItem{ID: "r", Title: "Remote", CategoryID: "cat1"}
	payload, _ := json.Marshal(remote)
	svc.ApplyRemote(event.ServerEvent{ID: "ev", Type: event.ServerContentCreated, Payload: payload, UserID: "other"})

	stored = snaps.Load(context.Background())
	if _, ok := stored.Contents["r"]; !ok {
		t.Fatal("remote apply not persisted to cache")
	}
}

func TestApplyRemoteIgnoresOwnEcho(t *testing.T) {
	svc, _, _ := newService(t)

	mine := types.ContentItem{ID: "x", Title: "Mine", CategoryID: "cat1"}
	payload, _ := json.Marshal(mine)
	svc.ApplyRemote(event.ServerEvent{ID: "ev", Type: event.ServerContentCreated, Payload: payload, UserID: "me"})

	if _, ok := svc.Content("x"); ok {
		t.Fatal("self-origin echo must not be applied")
	}
}

func TestGenerateShortsIsOneUndoStep(t *testing.T) {
	svc, sink, _ := newService(t)

	parent := types.ContentItem{ID: "p", Title: "Ep1", CategoryID: "cat1", Date: types.NewDay(2024, time.April, 2)}
	if _, err := svc.CreateContent(parent); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	sink.reset()

	shorts, err := svc.GenerateShorts("p", 3)
	if err != nil {
		t.Fatalf("generate shorts: %v", err)
	}
	if len(shorts) != 3 {
		t.Fatalf("expected 3 shorts, got %d", len(shorts))
	}
	for _, short := range shorts {
		if short.ParentID != "p" || short.CategoryID != "cat1" || short.Date != parent.Date {
			t.Fatalf("unexpected short %+v", short)
		}
	}
	if len(sink.ofType(event.ClientContentCreate)) != 3 {
		t.Fatalf("expected 3 create events, got %+v", sink.events)
	}

	if !svc.Undo() {
		t.Fatal("undo failed")
	}
	snap := svc.Snapshot()
	if len(snap.Contents) != 1 {
		t.Fatalf("one undo must revert the whole batch, got %d items", len(snap.Contents))
	}
}

func TestGenerateSeriesSpacesByCadence(t *testing.T) {
	svc, _, _ := newService(t)

	initial, _ := json.Marshal(event.InitialData{
		Categories: []types.Category{{ID: "cat1", Name: "Main", Color: "210 80% 55%"}},
		Series:     []types.Series{{ID: "s", Name: "Weekly", CategoryID: "cat1", CadenceDay: 7}},
	})
	svc.ApplyRemote(event.ServerEvent{ID: "init", Type: event.ServerDataInitial, Payload: initial})

	items, err := svc.GenerateSeries("s", types.NewDay(2024, time.January, 1), 3)
	if err != nil {
		t.Fatalf("generate series: %v", err)
	}
	want := []string{"2024-01-01", "2024-01-08", "2024-01-15"}
	for i, item := range items {
		if item.Date.String() != want[i] {
			t.Fatalf("item %d on %s, want %s", i, item.Date, want[i])
		}
		if item.SeriesID != "s" {
			t.Fatalf("item %d missing series id", i)
		}
	}

	if _, err := svc.GenerateSeries("nope", types.NewDay(2024, time.January, 1), 1); err == nil {
		t.Fatal("expected error for unknown series")
	}
}

func TestLinkingAPairedItemClearsItsOldPartnerOnCreate(t *testing.T) {
	svc, sink, _ := newService(t)

	if _, err := svc.CreateContent(types.ContentItem{ID: "c", Title: "C", CategoryID: "cat1"}); err != nil {
		t.Fatalf("create c: %v", err)
	}
	if _, err := svc.CreateContent(types.ContentItem{ID: "b", Title: "B", CategoryID: "cat1", LinkedContentID: "c"}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	sink.reset()

	if _, err := svc.CreateContent(types.ContentItem{ID: "a", Title: "A", CategoryID: "cat1", LinkedContentID: "b"}); err != nil {
		t.Fatalf("create a: %v", err)
	}

	a, _ := svc.Content("a")
	b, _ := svc.Content("b")
	c, _ := svc.Content("c")
	if a.LinkedContentID != "b" || b.LinkedContentID != "a" {
		t.Fatalf("expected a and b paired, got a→%q b→%q", a.LinkedContentID, b.LinkedContentID)
	}
	if c.LinkedContentID != "" {
		t.Fatalf("stolen partner must be unlinked, c still links to %q", c.LinkedContentID)
	}

	updates := sink.ofType(event.ClientContentUpdate)
	if len(updates) != 2 {
		t.Fatalf("expected update events for both b and c, got %+v", sink.events)
	}
	cleared := decodeContent(t, updates[0])
	if cleared.ID != "c" || cleared.LinkedContentID != "" {
		t.Fatalf("first update must clear c, got %+v", cleared)
	}
}

func TestLinkingAPairedItemClearsItsOldPartnerOnUpdate(t *testing.T) {
	svc, _, _ := newService(t)

	if _, err := svc.CreateContent(types.ContentItem{ID: "c", Title: "C", CategoryID: "cat1"}); err != nil {
		t.Fatalf("create c: %v", err)
	}
	if _, err := svc.CreateContent(types.ContentItem{ID: "b", Title: "B", CategoryID: "cat1", LinkedContentID: "c"}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := svc.CreateContent(types.ContentItem{ID: "a", Title: "A", CategoryID: "cat1"}); err != nil {
		t.Fatalf("create a: %v", err)
	}

	a, _ := svc.Content("a")
	a.LinkedContentID = "b"
	if err := svc.UpdateContent(a); err != nil {
		t.Fatalf("relink a: %v", err)
	}

	a, _ = svc.Content("a")
	b, _ := svc.Content("b")
	c, _ := svc.Content("c")
	if a.LinkedContentID != "b" || b.LinkedContentID != "a" {
		t.Fatalf("expected a and b paired, got a→%q b→%q", a.LinkedContentID, b.LinkedContentID)
	}
	if c.LinkedContentID != "" {
		t.Fatalf("stolen partner must be unlinked, c still links to %q", c.LinkedContentID)
	}
}

func TestUndoCascadeRestoresCategoryBeforeContents(t *testing.T) {
	svc, sink, _ := newService(t)

	if _, err := svc.CreateCategory(types.Category{ID: "cat2", Name: "Other", Color: "10 50% 40%"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := svc.CreateContent(types.ContentItem{ID: "x", Title: "Ep1", CategoryID: "cat2"}); err != nil {
		t.Fatalf("create content: %v", err)
	}
	if err := svc.DeleteCategory("cat2"); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	sink.reset()

	if !svc.Undo() {
		t.Fatal("undo failed")
	}

	catIdx, contentIdx := -1, -1
	for i, ev := range sink.events {
		switch ev.Type {
		case event.ClientCategoryCreate:
			catIdx = i
		case event.ClientContentCreate:
			contentIdx = i
		}
	}
	if catIdx < 0 || contentIdx < 0 {
		t.Fatalf("expected category and content creates, got %+v", sink.events)
	}
	if catIdx > contentIdx {
		t.Fatalf("category create must precede the content that references it, got %+v", sink.events)
	}
}

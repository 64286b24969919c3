package event

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/example/planboard/internal/types"
)

func TestCodecGeneratesUniqueIDs(t *testing.T) {
	codec := NewCodec()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		ev := codec.DataRequest()
		if ev.ID == "" {
			t.Fatal("expected a generated id")
		}
		if _, dup := seen[ev.ID]; dup {
			t.Fatalf("duplicate event id %s", ev.ID)
		}
		seen[ev.ID] = struct{}{}
	}
}

func TestCodecStampsWallClockMillis(t *testing.T) {
	at := time.Date(2024, time.May, 4, 12, 0, 0, 0, time.UTC)
	codec := NewCodec(WithClock(func() time.Time { return at }))

	ev := codec.ContentDelete("x")
	if ev.Timestamp != at.UnixMilli() {
		t.Fatalf("expected %d, got %d", at.UnixMilli(), ev.Timestamp)
	}
	if ev.Type != ClientContentDelete {
		t.Fatalf("unexpected type %s", ev.Type)
	}

	var ref DeleteRef
	if err := json.Unmarshal(ev.Payload, &ref); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ref.ID != "x" {
		t.Fatalf("expected delete ref x, got %q", ref.ID)
	}
}

func TestCodecCreateCarriesFullEntity(t *testing.T) {
	codec := NewCodec()
	item := types.ContentItem{
		ID:         "c1",
		Title:      "Ep1",
		CategoryID: "cat1",
		Date:       types.NewDay(2024, time.January, 1),
	}

	ev := codec.ContentCreate(item)

	var decoded types.ContentItem
	if err := json.Unmarshal(ev.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !reflect.DeepEqual(decoded, item) {
		t.Fatalf("payload round trip mismatch: %+v", decoded)
	}
}

func TestCodecAuthPayloads(t *testing.T) {
	codec := NewCodec(WithIDSource(func() string { return "fixed" }))

	login := codec.Login("a@b.c", "secret")
	var creds Credentials
	if err := json.Unmarshal(login.Payload, &creds); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if creds.Email != "a@b.c" || creds.Password != "secret" || creds.Token != "" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	silent := codec.TokenLogin("tok")
	creds = Credentials{}
	if err := json.Unmarshal(silent.Payload, &creds); err != nil {
		t.Fatalf("decode token login: %v", err)
	}
	if creds.Token != "tok" || creds.Email != "" {
		t.Fatalf("unexpected silent credentials %+v", creds)
	}
	if silent.ID != "fixed" {
		t.Fatalf("id source not applied: %s", silent.ID)
	}
}

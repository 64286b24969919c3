package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ActorID identifies the user a client session acts as. Inbound events carry
// the originating actor so locally issued mutations echoed by the server can
// be told apart from genuinely remote ones.
type ActorID string

// dayLayout is the canonical wire and storage form of a calendar day.
const dayLayout = "2006-01-02"

// Day is a calendar day with no time-of-day component. The server transmits
// date fields as ISO-8601 strings, sometimes with a time portion attached;
// Day normalizes both forms to a single canonical representation so that
// serialized values compare equal whenever they denote the same day.
type Day struct {
	t time.Time
}

// DayOf truncates a timestamp to its calendar day in UTC.
func DayOf(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// NewDay constructs a Day from its components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay accepts either a bare calendar date or a full ISO-8601 timestamp.
func ParseDay(s string) (Day, error) {
	if t, err := time.Parse(dayLayout, s); err == nil {
		return DayOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DayOf(t), nil
	}
	return Day{}, fmt.Errorf("invalid calendar day %q", s)
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time { return d.t }

// Before reports whether d falls strictly before other.
func (d Day) Before(other Day) bool { return d.t.Before(other.t) }

// AddDays returns the day shifted by n calendar days.
func (d Day) AddDays(n int) Day { return DayOf(d.t.AddDate(0, 0, n)) }

func (d Day) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dayLayout)
}

// MarshalJSON emits the canonical YYYY-MM-DD form.
func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts the canonical form as well as full ISO-8601
// timestamps as delivered inside data:initial payloads.
func (d *Day) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ChecklistItem is a single entry of a content item's production checklist.
type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// ContentItem is one planned piece of content on the calendar.
type ContentItem struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	CategoryID      string          `json:"categoryId"`
	Date            Day             `json:"date"`
	Published       bool            `json:"published"`
	Notes           string          `json:"notes,omitempty"`
	LinkedContentID string          `json:"linkedContentId,omitempty"`
	ContentType     string          `json:"contentType,omitempty"`
	Priority        int             `json:"priority,omitempty"`
	PipelineStageID string          `json:"pipelineStageId,omitempty"`
	Checklist       []ChecklistItem `json:"checklist,omitempty"`
	ParentID        string          `json:"parentId,omitempty"`
	SeriesID        string          `json:"seriesId,omitempty"`
	TemplateID      string          `json:"templateId,omitempty"`
}

// Category groups content items and carries presentation defaults. Color is
// an HSL triple string such as "210 80% 55%".
type Category struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Color               string `json:"color"`
	Features            uint32 `json:"features,omitempty"`
	DefaultTemplateID   string `json:"defaultTemplateId,omitempty"`
	SecondaryTemplateID string `json:"secondaryTemplateId,omitempty"`
}

// VacationPeriod blocks out an inclusive date interval on the calendar.
// There is no update event kind for vacations on the wire; an update is
// performed as delete-then-create of the same id.
type VacationPeriod struct {
	ID        string `json:"id"`
	StartDate Day    `json:"startDate"`
	EndDate   Day    `json:"endDate"`
	Label     string `json:"label"`
}

// Template is server-provided reference data used to prefill new content
// items. Templates are never mutated by this client.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ContentType string          `json:"contentType,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// Series describes a recurring content schedule. Like templates, series are
// read-only reference data on this client.
type Series struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"categoryId,omitempty"`
	TemplateID string `json:"templateId,omitempty"`
	CadenceDay int    `json:"cadenceDays,omitempty"`
}

// Snapshot is a full copy of the three mutable collections at one point in
// time, keyed by entity id. It is the unit of undo capture and of the
// durable offline cache.
type Snapshot struct {
	Contents   map[string]ContentItem    `json:"contents"`
	Categories map[string]Category       `json:"categories"`
	Vacations  map[string]VacationPeriod `json:"vacations"`
}

// NewSnapshot returns a snapshot with all collections allocated.
func NewSnapshot() Snapshot {
	return Snapshot{
		Contents:   make(map[string]ContentItem),
		Categories: make(map[string]Category),
		Vacations:  make(map[string]VacationPeriod),
	}
}

// Clone deep-copies the snapshot so later mutations cannot leak into undo
// captures or cached state.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Contents:   make(map[string]ContentItem, len(s.Contents)),
		Categories: make(map[string]Category, len(s.Categories)),
		Vacations:  make(map[string]VacationPeriod, len(s.Vacations)),
	}
	for id, item := range s.Contents {
		if len(item.Checklist) > 0 {
			item.Checklist = append([]ChecklistItem(nil), item.Checklist...)
		}
		out.Contents[id] = item
	}
	for id, cat := range s.Categories {
		out.Categories[id] = cat
	}
	for id, vac := range s.Vacations {
		out.Vacations[id] = vac
	}
	return out
}

// Normalize allocates any nil collection so callers can index freely after
// decoding a partial or corrupt stored snapshot.
func (s *Snapshot) Normalize() {
	if s.Contents == nil {
		s.Contents = make(map[string]ContentItem)
	}
	if s.Categories == nil {
		s.Categories = make(map[string]Category)
	}
	if s.Vacations == nil {
		s.Vacations = make(map[string]VacationPeriod)
	}
}

// ValidColor reports whether a category color looks like an HSL triple.
func ValidColor(color string) bool {
	color = strings.TrimSpace(color)
	return strings.Count(color, " ") == 2 && strings.HasSuffix(color, "%")
}

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// DefaultEntryTitle is used when an entry is created without a title.
const DefaultEntryTitle = "Untitled"

// Entry is a single journal record.
//
// Date is the day the entry is ABOUT, chosen by the user; it defaults to
// the creation time but is independent of CreatedAt. All sorting and the
// writing streak use Date.
//
// UserID is the owning partition. It is not part of the JSON shape: the
// API only ever returns entries to their owner.
type Entry struct {
	ID             string    `json:"id"`
	UserID         string    `json:"-"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Mood           *string   `json:"mood"`
	Themes         []string  `json:"themes"`
	Milestone      bool      `json:"milestone"`
	LessonsLearned string    `json:"lessons_learned"`
	AIInsights     string    `json:"ai_insights"`
	Date           time.Time `json:"date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Mood != nil {
		m := *e.Mood
		c.Mood = &m
	}
	c.Themes = append([]string{}, e.Themes...)
	return &c
}

// EntryInput is the request shape for creating or patching an entry.
// Pointer fields distinguish "absent" from a zero value; Mood additionally
// distinguishes an explicit null. Date is kept as text and parsed by the
// service so a bad date can be reported as a validation error.
type EntryInput struct {
	Title          *string        `json:"title"`
	Content        *string        `json:"content"`
	Mood           NullableString `json:"mood"`
	Themes         *[]string      `json:"themes"`
	Tags           *[]string      `json:"tags"`
	Milestone      *bool          `json:"milestone"`
	LessonsLearned *string        `json:"lessons_learned"`
	AIInsights     *string        `json:"ai_insights"`
	Date           *string        `json:"date"`
}

// EntryPatch is a validated partial update. Only set fields overwrite.
type EntryPatch struct {
	Title          *string
	Content        *string
	Mood           NullableString
	Themes         *[]string
	Milestone      *bool
	LessonsLearned *string
	AIInsights     *string
	Date           *time.Time
}

// Apply overwrites e's fields with the patch's set fields and bumps
// UpdatedAt. ID, UserID and CreatedAt are never touched.
func (p EntryPatch) Apply(e *Entry, now time.Time) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Content != nil {
		e.Content = *p.Content
	}
	if p.Mood.Set {
		e.Mood = p.Mood.Ptr()
	}
	if p.Themes != nil {
		e.Themes = append([]string{}, (*p.Themes)...)
	}
	if p.Milestone != nil {
		e.Milestone = *p.Milestone
	}
	if p.LessonsLearned != nil {
		e.LessonsLearned = *p.LessonsLearned
	}
	if p.AIInsights != nil {
		e.AIInsights = *p.AIInsights
	}
	if p.Date != nil {
		e.Date = p.Date.UTC()
	}
	e.UpdatedAt = now
}

// NullableString is a JSON string field that remembers whether it was
// present and whether it was null.
type NullableString struct {
	Set   bool
	Valid bool
	Value string
}

// UnmarshalJSON is only called when the field is present, including for
// an explicit null.
func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Valid = false
		n.Value = ""
		return nil
	}
	if err := json.Unmarshal(b, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Ptr returns the value as a *string, nil for null or empty.
func (n NullableString) Ptr() *string {
	if !n.Valid || n.Value == "" {
		return nil
	}
	v := n.Value
	return &v
}

var errBadDate = errors.New("unrecognized date format")

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate reads an entry date and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errBadDate
}

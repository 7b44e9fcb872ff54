package client

import "encoding/json"

// EntryFields are the entry fields sent by CreateEntry and UpdateEntry.
// Nil fields are left out of the request, so an update only touches what
// is set. ClearMood sends "mood": null.
type EntryFields struct {
	Title          *string   `json:"title,omitempty"`
	Content        *string   `json:"content,omitempty"`
	Mood           *string   `json:"mood,omitempty"`
	Themes         *[]string `json:"themes,omitempty"`
	Milestone      *bool     `json:"milestone,omitempty"`
	LessonsLearned *string   `json:"lessons_learned,omitempty"`
	AIInsights     *string   `json:"ai_insights,omitempty"`
	Date           string    `json:"date,omitempty"`

	ClearMood bool `json:"-"`
}

func (f EntryFields) MarshalJSON() ([]byte, error) {
	type plain EntryFields
	raw, err := json.Marshal(plain(f))
	if err != nil || !f.ClearMood {
		return raw, err
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["mood"] = json.RawMessage("null")
	return json.Marshal(m)
}

// String returns a pointer to s, for filling EntryFields and UserPatch.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Strings returns a pointer to ss.
func Strings(ss ...string) *[]string {
	if ss == nil {
		ss = []string{}
	}
	return &ss
}

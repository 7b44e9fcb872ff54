// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, normalizes, orchestrates
//	Repository (data layer)  → reads/writes the store
//
// Services accept plain Go values (never *http.Request) and return
// apperror kinds (never HTTP status codes). The handler package translates
// one into the other.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces, not a concrete store. main.go
// decides whether that is SQLite, the JSON document or (for sessions)
// Redis; tests pass in-memory fakes.
package service

// Recorder receives business events. The metrics package implements it;
// a nil Recorder passed to a constructor is replaced by a no-op.
type Recorder interface {
	Login()
	EntryMutation(op string)
	AIReply(outcome string)
}

// Entry mutation labels passed to Recorder.EntryMutation.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// AI reply outcomes passed to Recorder.AIReply.
const (
	AIUpstream = "upstream"
	AIFallback = "fallback"
	AIError    = "error"
)

type nopRecorder struct{}

func (nopRecorder) Login()               {}
func (nopRecorder) EntryMutation(string) {}
func (nopRecorder) AIReply(string)       {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

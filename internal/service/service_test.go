package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// fakeStore is a hand-written in-memory implementation of the repository
// interfaces. It keeps only what the service tests look at; statistics and
// ordering are covered by the real stores' conformance suite.

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	entries  map[string]*model.Entry
	sessions map[string]*model.Session
	nextID   int
	now      time.Time

	lastPatch model.EntryPatch
	lastList  repository.ListOptions
	failWith  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*model.User{},
		entries:  map[string]*model.Entry{},
		sessions: map[string]*model.Session{},
		now:      time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) GetOrCreateUserByEmail(_ context.Context, email, name string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	email = model.NormalizeEmail(email)
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	u := model.NewUser(email, name, f.now)
	u.ID = f.id("user")
	f.users[u.ID] = u
	c := *u
	return &c, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, id string, patch model.UserPatch) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	patch.Apply(u, f.now)
	c := *u
	return &c, nil
}

func (f *fakeStore) ListEntries(_ context.Context, userID string, opts repository.ListOptions) ([]model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = opts
	out := []model.Entry{}
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, *e.Clone())
		}
	}
	return out, nil
}

func (f *fakeStore) CreateEntry(_ context.Context, userID string, e *model.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	e.ID = f.id("entry")
	e.UserID = userID
	e.CreatedAt, e.UpdatedAt = f.now, f.now
	if e.Date.IsZero() {
		e.Date = f.now
	}
	f.entries[e.ID] = e.Clone()
	return nil
}

func (f *fakeStore) UpdateEntry(_ context.Context, userID, id string, patch model.EntryPatch) (*model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPatch = patch
	e, ok := f.entries[id]
	if !ok || e.UserID != userID {
		return nil, apperror.NotFound("entry", id)
	}
	patch.Apply(e, f.now)
	return e.Clone(), nil
}

func (f *fakeStore) DeleteEntry(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.UserID != userID {
		return apperror.NotFound("entry", id)
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.sessions[s.TokenHash] = &c
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, hash string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	s, ok := f.sessions[hash]
	if !ok || s.Expired(f.now) {
		return nil, apperror.NotFound("session", "(redacted)")
	}
	c := *s
	return &c, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, hash)
	return nil
}

func (f *fakeStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeRecorder counts events.
type fakeRecorder struct {
	mu        sync.Mutex
	logins    int
	mutations []string
	ai        []string
}

func (r *fakeRecorder) Login() {
	r.mu.Lock()
	r.logins++
	r.mu.Unlock()
}

func (r *fakeRecorder) EntryMutation(op string) {
	r.mu.Lock()
	r.mutations = append(r.mutations, op)
	r.mu.Unlock()
}

func (r *fakeRecorder) AIReply(outcome string) {
	r.mu.Lock()
	r.ai = append(r.ai, outcome)
	r.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

var errDiskFull = errors.New("disk full")

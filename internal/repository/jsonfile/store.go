package jsonfile

import (
	"context"
	"sort"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
	"github.com/sakif/chronicle/internal/stats"
)

// GetOrCreateUserByEmail looks the user up without touching the file and
// only takes the write path for a first login.
func (s *Store) GetOrCreateUserByEmail(ctx context.Context, email, name string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}

	var (
		user  model.User
		found bool
	)
	err := s.view(ctx, func(doc *document) error {
		if u := userByEmail(doc, email); u != nil {
			user, found = *u, true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found {
		return &user, nil
	}

	err = s.update(ctx, func(doc *document) error {
		// Another login may have created the account since the view.
		if u := userByEmail(doc, email); u != nil {
			user = *u
			return nil
		}
		u := model.NewUser(email, name, s.now().UTC())
		u.ID = xid.New().String()
		doc.Users[u.ID] = u
		doc.Entries[u.ID] = []*model.Entry{}
		user = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func userByEmail(doc *document, email string) *model.User {
	for _, u := range doc.Users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.view(ctx, func(doc *document) error {
		u, ok := doc.Users[id]
		if !ok {
			return apperror.NotFound("user", id)
		}
		user = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	var user model.User
	err := s.update(ctx, func(doc *document) error {
		u, ok := doc.Users[id]
		if !ok {
			return apperror.NotFound("user", id)
		}
		patch.Apply(u, s.now().UTC())
		user = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListEntries returns copies of the user's entries ordered by date, ties
// broken by created_at in the same direction.
func (s *Store) ListEntries(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Entry, error) {
	var out []model.Entry
	err := s.view(ctx, func(doc *document) error {
		entries := doc.Entries[userID]
		out = make([]model.Entry, 0, len(entries))
		for _, e := range entries {
			out = append(out, *e.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if opts.Sort == repository.SortDateAsc {
			a, b = b, a
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) CreateEntry(ctx context.Context, userID string, entry *model.Entry) error {
	return s.update(ctx, func(doc *document) error {
		u, ok := doc.Users[userID]
		if !ok {
			return apperror.NotFound("user", userID)
		}

		now := s.now().UTC()
		entry.ID = xid.New().String()
		entry.UserID = userID
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if entry.Date.IsZero() {
			entry.Date = now
		}
		entry.Date = entry.Date.UTC()
		if entry.Themes == nil {
			entry.Themes = []string{}
		}

		doc.Entries[userID] = append(doc.Entries[userID], entry.Clone())
		refreshStats(u, doc.Entries[userID], now)
		return nil
	})
}

func (s *Store) UpdateEntry(ctx context.Context, userID, id string, patch model.EntryPatch) (*model.Entry, error) {
	var updated *model.Entry
	err := s.update(ctx, func(doc *document) error {
		u, ok := doc.Users[userID]
		if !ok {
			return apperror.NotFound("entry", id)
		}
		entries := doc.Entries[userID]
		idx := indexOf(entries, id)
		if idx < 0 {
			return apperror.NotFound("entry", id)
		}

		now := s.now().UTC()
		patch.Apply(entries[idx], now)
		refreshStats(u, entries, now)
		updated = entries[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteEntry(ctx context.Context, userID, id string) error {
	return s.update(ctx, func(doc *document) error {
		u, ok := doc.Users[userID]
		if !ok {
			return apperror.NotFound("entry", id)
		}
		entries := doc.Entries[userID]
		idx := indexOf(entries, id)
		if idx < 0 {
			return apperror.NotFound("entry", id)
		}

		next := make([]*model.Entry, 0, len(entries)-1)
		next = append(next, entries[:idx]...)
		next = append(next, entries[idx+1:]...)
		doc.Entries[userID] = next
		refreshStats(u, next, s.now().UTC())
		return nil
	})
}

func (s *Store) CreateSession(ctx context.Context, session *model.Session) error {
	stored := *session
	return s.update(ctx, func(doc *document) error {
		if _, exists := doc.Sessions[stored.TokenHash]; exists {
			return apperror.Conflict("session", "(redacted)")
		}
		doc.Sessions[stored.TokenHash] = &stored
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, tokenHash string) (*model.Session, error) {
	var session model.Session
	err := s.view(ctx, func(doc *document) error {
		sess, ok := doc.Sessions[tokenHash]
		if !ok || sess.Expired(s.now()) {
			return apperror.NotFound("session", "(redacted)")
		}
		session = *sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	return s.update(ctx, func(doc *document) error {
		delete(doc.Sessions, tokenHash)
		return nil
	})
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.update(ctx, func(doc *document) error {
		for hash, sess := range doc.Sessions {
			if sess.Expired(now) {
				delete(doc.Sessions, hash)
				n++
			}
		}
		return nil
	})
	return n, err
}

// refreshStats rewrites u's derived counters from entries and bumps
// UpdatedAt.
func refreshStats(u *model.User, entries []*model.Entry, now time.Time) {
	dates := make([]time.Time, len(entries))
	for i, e := range entries {
		dates[i] = e.Date
	}
	st := stats.Compute(dates, now)
	u.TotalEntries = st.TotalEntries
	u.WritingStreak = st.WritingStreak
	u.UpdatedAt = now
}

func indexOf(entries []*model.Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Package repotest is a conformance suite for repository.Store
// implementations. Each backend's tests call Run with a constructor.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

// Factory opens an empty store that reads time from now.
type Factory func(t *testing.T, now func() time.Time) repository.Store

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Start is the clock's initial time in every test: midday, so entries a few
// hours either side still fall on the same UTC day.
var Start = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("Entries", func(t *testing.T) { testEntries(t, newStore) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore) })
}

func setup(t *testing.T, newStore Factory) (repository.Store, *Clock) {
	t.Helper()
	clock := NewClock(Start)
	store := newStore(t, clock.Now)
	t.Cleanup(func() { store.Close() })
	return store, clock
}

func mustUser(t *testing.T, s repository.Store, email string) *model.User {
	t.Helper()
	u, err := s.GetOrCreateUserByEmail(context.Background(), email, "")
	require.NoError(t, err)
	return u
}

func mustEntry(t *testing.T, s repository.Store, userID, title string, date time.Time) *model.Entry {
	t.Helper()
	e := &model.Entry{Title: title, Themes: []string{}, Date: date}
	require.NoError(t, s.CreateEntry(context.Background(), userID, e))
	return e
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("creates on first login with defaults", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u, err := s.GetOrCreateUserByEmail(ctx, "Ada@Example.com ", "")
		require.NoError(t, err)

		assert.NotEmpty(t, u.ID)
		assert.Equal(t, "ada@example.com", u.Email)
		assert.Equal(t, "ada", u.Name)
		assert.Equal(t, model.DefaultThemeColor, u.ThemeColor)
		assert.Equal(t, "", u.CustomColor)
		assert.Zero(t, u.TotalEntries)
		assert.Zero(t, u.WritingStreak)
		assert.True(t, Start.Equal(u.CreatedAt))
	})

	t.Run("one account per normalized email", func(t *testing.T) {
		s, _ := setup(t, newStore)
		first := mustUser(t, s, "a@x.com")
		second, err := s.GetOrCreateUserByEmail(ctx, "  A@X.COM", "Someone Else")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "a", second.Name, "existing name is kept")
	})

	t.Run("explicit name is used", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u, err := s.GetOrCreateUserByEmail(ctx, "b@x.com", "Bea")
		require.NoError(t, err)
		assert.Equal(t, "Bea", u.Name)
	})

	t.Run("empty email is a validation error", func(t *testing.T) {
		s, _ := setup(t, newStore)
		_, err := s.GetOrCreateUserByEmail(ctx, "   ", "")
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("get unknown user", func(t *testing.T) {
		s, _ := setup(t, newStore)
		_, err := s.GetUserByID(ctx, "nope")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("update profile", func(t *testing.T) {
		s, clock := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		clock.Advance(time.Minute)

		name, color := "Ada L", "teal"
		updated, err := s.UpdateUser(ctx, u.ID, model.UserPatch{Name: &name, ThemeColor: &color})
		require.NoError(t, err)
		assert.Equal(t, "Ada L", updated.Name)
		assert.Equal(t, "teal", updated.ThemeColor)
		assert.Equal(t, "", updated.CustomColor)
		assert.True(t, updated.UpdatedAt.After(u.UpdatedAt))

		got, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada L", got.Name)
		assert.Equal(t, u.Email, got.Email)
	})

	t.Run("update unknown user", func(t *testing.T) {
		s, _ := setup(t, newStore)
		name := "x"
		_, err := s.UpdateUser(ctx, "nope", model.UserPatch{Name: &name})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})
}

func testEntries(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create assigns identity and round-trips fields", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		mood := "calm"
		e := &model.Entry{
			Title:          "Day one",
			Content:        "hello",
			Mood:           &mood,
			Themes:         []string{"work", "family"},
			Milestone:      true,
			LessonsLearned: "rest",
			AIInsights:     "none",
			Date:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.CreateEntry(ctx, u.ID, e))
		assert.NotEmpty(t, e.ID)
		assert.True(t, Start.Equal(e.CreatedAt))
		assert.True(t, Start.Equal(e.UpdatedAt))

		list, err := s.ListEntries(ctx, u.ID, repository.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		got := list[0]
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, "Day one", got.Title)
		require.NotNil(t, got.Mood)
		assert.Equal(t, "calm", *got.Mood)
		assert.Equal(t, []string{"work", "family"}, got.Themes)
		assert.True(t, got.Milestone)
		assert.Equal(t, "rest", got.LessonsLearned)
		assert.True(t, e.Date.Equal(got.Date))
	})

	t.Run("zero date defaults to now and nil themes become empty", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		e := &model.Entry{Title: "t"}
		require.NoError(t, s.CreateEntry(ctx, u.ID, e))

		list, err := s.ListEntries(ctx, u.ID, repository.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, Start.Equal(list[0].Date))
		assert.NotNil(t, list[0].Themes)
		assert.Empty(t, list[0].Themes)
		assert.Nil(t, list[0].Mood)
	})

	t.Run("create for unknown user", func(t *testing.T) {
		s, _ := setup(t, newStore)
		err := s.CreateEntry(ctx, "ghost", &model.Entry{Title: "t"})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("list sorts by date with limit", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		mustEntry(t, s, u.ID, "middle", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
		mustEntry(t, s, u.ID, "oldest", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		mustEntry(t, s, u.ID, "newest", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

		tests := []struct {
			name string
			opts repository.ListOptions
			want []string
		}{
			{"descending", repository.ListOptions{Sort: repository.SortDateDesc}, []string{"newest", "middle", "oldest"}},
			{"ascending", repository.ListOptions{Sort: repository.SortDateAsc}, []string{"oldest", "middle", "newest"}},
			{"limit", repository.ListOptions{Sort: repository.SortDateDesc, Limit: 2}, []string{"newest", "middle"}},
			{"limit larger than set", repository.ListOptions{Sort: repository.SortDateAsc, Limit: 10}, []string{"oldest", "middle", "newest"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				list, err := s.ListEntries(ctx, u.ID, tt.opts)
				require.NoError(t, err)
				assert.Equal(t, tt.want, titles(list))
			})
		}
	})

	t.Run("equal dates are ordered by creation", func(t *testing.T) {
		s, clock := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		mustEntry(t, s, u.ID, "first", day)
		clock.Advance(time.Second)
		mustEntry(t, s, u.ID, "second", day)

		desc, err := s.ListEntries(ctx, u.ID, repository.ListOptions{Sort: repository.SortDateDesc})
		require.NoError(t, err)
		assert.Equal(t, []string{"second", "first"}, titles(desc))

		asc, err := s.ListEntries(ctx, u.ID, repository.ListOptions{Sort: repository.SortDateAsc})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, titles(asc))
	})

	t.Run("users never see each other's entries", func(t *testing.T) {
		s, _ := setup(t, newStore)
		a := mustUser(t, s, "a@x.com")
		b := mustUser(t, s, "b@x.com")
		e := mustEntry(t, s, a.ID, "private", Start)

		list, err := s.ListEntries(ctx, b.ID, repository.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list)

		title := "hijack"
		_, err = s.UpdateEntry(ctx, b.ID, e.ID, model.EntryPatch{Title: &title})
		assert.ErrorIs(t, err, apperror.ErrNotFound)

		err = s.DeleteEntry(ctx, b.ID, e.ID)
		assert.ErrorIs(t, err, apperror.ErrNotFound)

		list, err = s.ListEntries(ctx, a.ID, repository.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "private", list[0].Title)
	})

	t.Run("update is a shallow patch", func(t *testing.T) {
		s, clock := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		mood := "happy"
		e := &model.Entry{Title: "old", Content: "body", Mood: &mood, Themes: []string{"a"}, Date: Start}
		require.NoError(t, s.CreateEntry(ctx, u.ID, e))
		clock.Advance(time.Hour)

		title := "new"
		themes := []string{"b", "c"}
		got, err := s.UpdateEntry(ctx, u.ID, e.ID, model.EntryPatch{
			Title:  &title,
			Themes: &themes,
			Mood:   model.NullableString{Set: true},
		})
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, "new", got.Title)
		assert.Equal(t, "body", got.Content)
		assert.Nil(t, got.Mood)
		assert.Equal(t, []string{"b", "c"}, got.Themes)
		assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, got.UpdatedAt.After(got.CreatedAt))

		list, err := s.ListEntries(ctx, u.ID, repository.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "new", list[0].Title)
		assert.Nil(t, list[0].Mood)
	})

	t.Run("update and delete unknown id", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		mustEntry(t, s, u.ID, "keep", Start)

		title := "x"
		_, err := s.UpdateEntry(ctx, u.ID, "missing", model.EntryPatch{Title: &title})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		assert.ErrorIs(t, s.DeleteEntry(ctx, u.ID, "missing"), apperror.ErrNotFound)

		got, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalEntries)
		assert.Equal(t, 1, got.WritingStreak)
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		e := mustEntry(t, s, u.ID, "gone", Start)
		require.NoError(t, s.DeleteEntry(ctx, u.ID, e.ID))

		list, err := s.ListEntries(ctx, u.ID, repository.ListOptions{})
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})
}

func testStats(t *testing.T, newStore Factory) {
	ctx := context.Background()
	day := func(offset int) time.Time { return Start.AddDate(0, 0, offset) }

	t.Run("every mutation refreshes the owner", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")

		today := mustEntry(t, s, u.ID, "today", day(0))
		mustEntry(t, s, u.ID, "yesterday", day(-1))
		mustEntry(t, s, u.ID, "gap", day(-3))

		got, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.TotalEntries)
		assert.Equal(t, 2, got.WritingStreak)

		// Moving today's entry back breaks the streak at its head.
		moved := day(-2)
		_, err = s.UpdateEntry(ctx, u.ID, today.ID, model.EntryPatch{Date: &moved})
		require.NoError(t, err)
		got, err = s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.TotalEntries)
		assert.Equal(t, 0, got.WritingStreak)

		mustEntry(t, s, u.ID, "new today", day(0))
		got, err = s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, got.TotalEntries)
		assert.Equal(t, 4, got.WritingStreak)

		require.NoError(t, s.DeleteEntry(ctx, u.ID, today.ID))
		got, err = s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.TotalEntries)
		assert.Equal(t, 2, got.WritingStreak)
	})

	t.Run("refresh bumps updated_at", func(t *testing.T) {
		s, clock := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		clock.Advance(time.Hour)
		mustEntry(t, s, u.ID, "a", day(0))

		got, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, Start.Add(time.Hour).Equal(got.UpdatedAt))
		assert.True(t, Start.Equal(got.CreatedAt))
	})

	t.Run("other users are untouched", func(t *testing.T) {
		s, _ := setup(t, newStore)
		a := mustUser(t, s, "a@x.com")
		b := mustUser(t, s, "b@x.com")
		mustEntry(t, s, a.ID, "a", day(0))

		got, err := s.GetUserByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Zero(t, got.TotalEntries)
		assert.Zero(t, got.WritingStreak)
	})

	t.Run("profile patch keeps statistics", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		mustEntry(t, s, u.ID, "a", day(0))

		name := "renamed"
		got, err := s.UpdateUser(ctx, u.ID, model.UserPatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalEntries)
		assert.Equal(t, 1, got.WritingStreak)
	})
}

func testSessions(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		exp := Start.Add(time.Hour)
		require.NoError(t, s.CreateSession(ctx, &model.Session{
			TokenHash: "h1", UserID: u.ID, CreatedAt: Start, ExpiresAt: &exp,
		}))

		got, err := s.GetSession(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.UserID)
		assert.Equal(t, "h1", got.TokenHash)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, exp.Equal(*got.ExpiresAt))
	})

	t.Run("duplicate token hash is a conflict", func(t *testing.T) {
		s, _ := setup(t, newStore)
		first := mustUser(t, s, "a@x.com")
		second := mustUser(t, s, "b@x.com")
		require.NoError(t, s.CreateSession(ctx, &model.Session{TokenHash: "dup", UserID: first.ID, CreatedAt: Start}))

		err := s.CreateSession(ctx, &model.Session{TokenHash: "dup", UserID: second.ID, CreatedAt: Start})
		assert.ErrorIs(t, err, apperror.ErrConflict)

		got, err := s.GetSession(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.UserID, "the original session is kept")
	})

	t.Run("session without expiry", func(t *testing.T) {
		s, clock := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		require.NoError(t, s.CreateSession(ctx, &model.Session{TokenHash: "h", UserID: u.ID, CreatedAt: Start}))
		clock.Advance(24 * 365 * time.Hour)

		got, err := s.GetSession(ctx, "h")
		require.NoError(t, err)
		assert.Nil(t, got.ExpiresAt)
	})

	t.Run("unknown and expired sessions are not found", func(t *testing.T) {
		s, clock := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		exp := Start.Add(time.Minute)
		require.NoError(t, s.CreateSession(ctx, &model.Session{TokenHash: "h", UserID: u.ID, CreatedAt: Start, ExpiresAt: &exp}))

		_, err := s.GetSession(ctx, "unknown")
		assert.ErrorIs(t, err, apperror.ErrNotFound)

		clock.Advance(time.Minute)
		_, err = s.GetSession(ctx, "h")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		require.NoError(t, s.CreateSession(ctx, &model.Session{TokenHash: "h", UserID: u.ID, CreatedAt: Start}))

		require.NoError(t, s.DeleteSession(ctx, "h"))
		require.NoError(t, s.DeleteSession(ctx, "h"))
		_, err := s.GetSession(ctx, "h")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		s, _ := setup(t, newStore)
		u := mustUser(t, s, "a@x.com")
		past := Start.Add(-time.Minute)
		future := Start.Add(time.Hour)
		require.NoError(t, s.CreateSession(ctx, &model.Session{TokenHash: "old", UserID: u.ID, CreatedAt: Start, ExpiresAt: &past}))
		require.NoError(t, s.CreateSession(ctx, &model.Session{TokenHash: "live", UserID: u.ID, CreatedAt: Start, ExpiresAt: &future}))
		require.NoError(t, s.CreateSession(ctx, &model.Session{TokenHash: "forever", UserID: u.ID, CreatedAt: Start}))

		n, err := s.DeleteExpiredSessions(ctx, Start)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.GetSession(ctx, "live")
		assert.NoError(t, err)
		_, err = s.GetSession(ctx, "forever")
		assert.NoError(t, err)
	})
}

func titles(entries []model.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

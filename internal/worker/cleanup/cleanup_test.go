package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository/sqlite"
)

type fakeDeleter struct {
	mu    sync.Mutex
	calls []time.Time
	n     int64
	err   error
}

func (f *fakeDeleter) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.n, f.err
}

func (f *fakeDeleter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type countingReporter struct{ total int64 }

func (r *countingReporter) SessionsSwept(n int64) { r.total += n }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	del := &fakeDeleter{n: 4}
	rep := &countingReporter{}
	j := NewSessionSweeper(del, discard(), WithReporter(rep), WithClock(func() time.Time { return now }))

	require.NoError(t, j.Run(context.Background()))
	require.NoError(t, j.Run(context.Background()))

	assert.Equal(t, []time.Time{now, now}, del.calls)
	assert.Equal(t, int64(8), rep.total)
}

func TestRun_Error(t *testing.T) {
	boom := errors.New("database is locked")
	rep := &countingReporter{}
	j := NewSessionSweeper(&fakeDeleter{err: boom, n: 9}, discard(), WithReporter(rep))

	assert.ErrorIs(t, j.Run(context.Background()), boom)
	assert.Zero(t, rep.total)
}

func TestWithInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, NewSessionSweeper(nil, discard(), WithInterval(0)).interval)
	assert.Equal(t, time.Minute, NewSessionSweeper(nil, discard(), WithInterval(time.Minute)).interval)
}

func TestLoop_RunsUntilCanceled(t *testing.T) {
	del := &fakeDeleter{}
	j := NewSessionSweeper(del, discard(), WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Loop(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return del.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after cancel")
	}
}

func TestRun_SQLiteStore(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store, err := sqlite.New(":memory:", sqlite.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	user, err := store.GetOrCreateUserByEmail(ctx, "a@x.com", "")
	require.NoError(t, err)

	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	for hash, exp := range map[string]*time.Time{"old": &past, "fresh": &future, "forever": nil} {
		require.NoError(t, store.CreateSession(ctx, &model.Session{
			TokenHash: hash, UserID: user.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: exp,
		}))
	}

	rep := &countingReporter{}
	j := NewSessionSweeper(store, discard(), WithReporter(rep), WithClock(func() time.Time { return now }))
	require.NoError(t, j.Run(ctx))
	assert.Equal(t, int64(1), rep.total)

	_, err = store.GetSession(ctx, "fresh")
	assert.NoError(t, err)
	_, err = store.GetSession(ctx, "forever")
	assert.NoError(t, err)
}

// Package cleanup runs the periodic deletion of expired sessions.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval is how often the sweeper runs when none is configured.
const DefaultInterval = time.Hour

// SessionDeleter is the slice of repository.SessionRepository the sweeper
// needs.
type SessionDeleter interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Reporter receives the number of sessions each run removed.
type Reporter interface {
	SessionsSwept(n int64)
}

// SessionSweeper deletes sessions whose expiry has passed.
type SessionSweeper struct {
	sessions SessionDeleter
	logger   *slog.Logger
	reporter Reporter
	interval time.Duration
	now      func() time.Time
}

// Option configures a SessionSweeper.
type Option func(*SessionSweeper)

// WithInterval sets the time between runs. Non-positive values keep the
// default.
func WithInterval(d time.Duration) Option {
	return func(j *SessionSweeper) {
		if d > 0 {
			j.interval = d
		}
	}
}

// WithReporter reports each run's deletions to r.
func WithReporter(r Reporter) Option {
	return func(j *SessionSweeper) { j.reporter = r }
}

// WithClock overrides the clock used to decide what has expired.
func WithClock(now func() time.Time) Option {
	return func(j *SessionSweeper) { j.now = now }
}

// NewSessionSweeper returns a sweeper that runs every DefaultInterval
// unless WithInterval says otherwise.
func NewSessionSweeper(sessions SessionDeleter, logger *slog.Logger, opts ...Option) *SessionSweeper {
	j := &SessionSweeper{
		sessions: sessions,
		logger:   logger,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run performs one sweep.
func (j *SessionSweeper) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpiredSessions(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		return fmt.Errorf("cleanup: deleting expired sessions: %w", err)
	}

	if j.reporter != nil {
		j.reporter.SessionsSwept(deleted)
	}
	j.logger.Info("session cleanup completed",
		slog.Int64("deletedCount", deleted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Loop runs a sweep immediately and then every interval until ctx is
// done. Failed runs are logged and retried on the next tick.
func (j *SessionSweeper) Loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		_ = j.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Package redis stores sessions in Redis so they can be shared between
// several API instances. Users and entries stay in the primary store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

// compile-time check that *SessionStore implements repository.SessionRepository
var _ repository.SessionRepository = (*SessionStore)(nil)

const defaultPrefix = "chronicle:session:"

// SessionStore keeps one key per session. Expiring sessions get a Redis
// TTL, so there is nothing for the cleanup worker to do.
type SessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// Connect parses a redis:// URL, applies pool and timeout settings and
// pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parsing url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithPrefix sets the key prefix. Tests use it to isolate runs.
func WithPrefix(prefix string) Option {
	return func(s *SessionStore) { s.prefix = prefix }
}

// WithClock overrides the clock used to compute TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore wraps an already connected client. The store owns the
// client and closes it in Close.
func NewSessionStore(client *redis.Client, opts ...Option) *SessionStore {
	s := &SessionStore{client: client, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying client.
func (s *SessionStore) Close() error {
	return s.client.Close()
}

func (s *SessionStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// record is the stored value. TokenHash is the key and is not repeated.
type record struct {
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateSession stores session under its token hash. A hash that is
// already present is apperror.ErrConflict; an expired session is dropped.
func (s *SessionStore) CreateSession(ctx context.Context, session *model.Session) error {
	ttl, ok := ttlFor(session, s.now())
	if !ok {
		// Already expired: storing it would only make GetSession lie.
		return nil
	}

	raw, err := json.Marshal(record{
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("redis: encoding session: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.key(session.TokenHash), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: storing session for user %s: %w", session.UserID, err)
	}
	if !created {
		return apperror.Conflict("session", "(redacted)")
	}
	return nil
}

// GetSession returns apperror.ErrNotFound for unknown and expired hashes.
func (s *SessionStore) GetSession(ctx context.Context, tokenHash string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperror.NotFound("session", "(redacted)")
		}
		return nil, fmt.Errorf("redis: getting session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis: decoding session: %w", err)
	}
	session := &model.Session{
		TokenHash: tokenHash,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if session.Expired(s.now()) {
		return nil, apperror.NotFound("session", "(redacted)")
	}
	return session, nil
}

// DeleteSession removes the key. Deleting a missing key succeeds.
func (s *SessionStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("redis: deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions is a no-op: Redis evicts expired keys itself.
func (s *SessionStore) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// ttlFor returns the Redis TTL for session: zero (no expiry) when it never
// expires, and ok=false when it is already expired.
func ttlFor(session *model.Session, now time.Time) (ttl time.Duration, ok bool) {
	if session.ExpiresAt == nil {
		return 0, true
	}
	ttl = session.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

// compile-time check that *DB implements repository.SessionRepository
var _ repository.SessionRepository = (*DB)(nil)

// CreateSession stores a session keyed by its token hash.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	var expiresAt sql.NullString
	if s.ExpiresAt != nil {
		expiresAt = sql.NullString{String: formatTime(*s.ExpiresAt), Valid: true}
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.TokenHash,
		s.UserID,
		formatTime(s.CreatedAt),
		expiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("session", "(redacted)")
		}
		return fmt.Errorf("sqlite: inserting session for user %s: %w", s.UserID, err)
	}
	return nil
}

// GetSession looks up a live session. Expired rows are treated as absent;
// the cleanup worker removes them later.
func (db *DB) GetSession(ctx context.Context, tokenHash string) (*model.Session, error) {
	var (
		s         model.Session
		createdAt string
		expiresAt sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT token_hash, user_id, created_at, expires_at FROM sessions WHERE token_hash = ?`,
		tokenHash,
	).Scan(&s.TokenHash, &s.UserID, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", "(redacted)")
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, err
		}
		s.ExpiresAt = &t
	}
	if s.Expired(db.now()) {
		return nil, apperror.NotFound("session", "(redacted)")
	}
	return &s, nil
}

// DeleteSession removes a session. Deleting an unknown session is not an
// error, so logout is idempotent.
func (db *DB) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before
// now. The fixed-width time format makes the text comparison chronological.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

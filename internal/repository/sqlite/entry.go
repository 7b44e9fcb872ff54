package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
	"github.com/sakif/chronicle/internal/stats"
)

// compile-time check that *DB implements repository.EntryRepository
var _ repository.EntryRepository = (*DB)(nil)

const entryColumns = `id, user_id, title, content, mood, themes, milestone, lessons_learned, ai_insights, date, created_at, updated_at`

// ListEntries returns the user's entries ordered by date.
//
// Ties on date are broken by created_at in the same direction, so the order
// is stable across calls. SQLite treats LIMIT -1 as "no limit".
func (db *DB) ListEntries(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Entry, error) {
	order := "DESC"
	if opts.Sort == repository.SortDateAsc {
		order = "ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE user_id = ?
		 ORDER BY date `+order+`, created_at `+order+`
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating entries: %w", err)
	}
	return entries, nil
}

// CreateEntry inserts entry for userID and refreshes the user's statistics
// in the same transaction.
func (db *DB) CreateEntry(ctx context.Context, userID string, entry *model.Entry) error {
	now := db.now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}

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

		themes, err := json.Marshal(entry.Themes)
		if err != nil {
			return fmt.Errorf("sqlite: encoding themes: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.UserID,
			entry.Title,
			entry.Content,
			nullString(entry.Mood),
			string(themes),
			entry.Milestone,
			entry.LessonsLearned,
			entry.AIInsights,
			formatTime(entry.Date),
			formatTime(entry.CreatedAt),
			formatTime(entry.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting entry: %w", err)
		}

		return refreshStats(ctx, tx, userID, now)
	})
}

// UpdateEntry applies patch to an entry owned by userID. An entry that
// exists but belongs to someone else is reported as not found.
func (db *DB) UpdateEntry(ctx context.Context, userID, id string, patch model.EntryPatch) (*model.Entry, error) {
	now := db.now().UTC()
	var updated *model.Entry
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		e, err := scanEntry(tx.QueryRowContext(ctx,
			`SELECT `+entryColumns+` FROM entries WHERE id = ? AND user_id = ?`, id, userID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("entry", id)
			}
			return fmt.Errorf("sqlite: getting entry %s: %w", id, err)
		}

		patch.Apply(e, now)
		themes, err := json.Marshal(e.Themes)
		if err != nil {
			return fmt.Errorf("sqlite: encoding themes: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE entries
			 SET title = ?, content = ?, mood = ?, themes = ?, milestone = ?,
			     lessons_learned = ?, ai_insights = ?, date = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?`,
			e.Title,
			e.Content,
			nullString(e.Mood),
			string(themes),
			e.Milestone,
			e.LessonsLearned,
			e.AIInsights,
			formatTime(e.Date),
			formatTime(e.UpdatedAt),
			id,
			userID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating entry %s: %w", id, err)
		}

		updated = e
		return refreshStats(ctx, tx, userID, now)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteEntry removes an entry owned by userID and refreshes statistics.
func (db *DB) DeleteEntry(ctx context.Context, userID, id string) error {
	now := db.now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM entries WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("sqlite: deleting entry %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("entry", id)
		}
		return refreshStats(ctx, tx, userID, now)
	})
}

// refreshStats recomputes total_entries and writing_streak from the user's
// entry dates and bumps the user's updated_at. It must run in the same
// transaction as the mutation.
func refreshStats(ctx context.Context, tx *sql.Tx, userID string, now time.Time) error {
	rows, err := tx.QueryContext(ctx, `SELECT date FROM entries WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: loading entry dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("sqlite: scanning entry date: %w", err)
		}
		d, err := parseTime(raw)
		if err != nil {
			return err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating entry dates: %w", err)
	}

	s := stats.Compute(dates, now)
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET total_entries = ?, writing_streak = ?, updated_at = ? WHERE id = ?`,
		s.TotalEntries, s.WritingStreak, formatTime(now), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating stats for user %s: %w", userID, err)
	}
	return nil
}

func requireUser(ctx context.Context, tx *sql.Tx, userID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("user", userID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: checking user %s: %w", userID, err)
	}
	return nil
}

func scanEntry(row scanner) (*model.Entry, error) {
	var (
		e                          model.Entry
		mood                       sql.NullString
		themes                     string
		date, createdAt, updatedAt string
	)
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Title,
		&e.Content,
		&mood,
		&themes,
		&e.Milestone,
		&e.LessonsLearned,
		&e.AIInsights,
		&date,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if mood.Valid {
		e.Mood = &mood.String
	}
	if err := json.Unmarshal([]byte(themes), &e.Themes); err != nil {
		return nil, fmt.Errorf("sqlite: decoding themes of entry %s: %w", e.ID, err)
	}
	if e.Themes == nil {
		e.Themes = []string{}
	}
	if e.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

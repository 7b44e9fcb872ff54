package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, theme_color, custom_color, total_entries, writing_streak, created_at, updated_at`

// GetOrCreateUserByEmail returns the account for email, creating it on first
// login.
//
// The lookup and the insert share one transaction, so two logins for the
// same new address can never produce two accounts. The UNIQUE constraint on
// users.email backs this up at the schema level and surfaces as
// apperror.ErrConflict.
func (db *DB) GetOrCreateUserByEmail(ctx context.Context, email, name string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}

	var user *model.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: looking up user by email: %w", err)
		}

		u := model.NewUser(email, name, db.now().UTC())
		u.ID = xid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID,
			u.Email,
			u.Name,
			u.ThemeColor,
			u.CustomColor,
			u.TotalEntries,
			u.WritingStreak,
			formatTime(u.CreatedAt),
			formatTime(u.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user", email)
			}
			return fmt.Errorf("sqlite: inserting user: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// UpdateUser applies patch to the user's profile fields. Statistics are
// never touched here.
func (db *DB) UpdateUser(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	var user *model.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("user", id)
			}
			return fmt.Errorf("sqlite: getting user %s: %w", id, err)
		}

		patch.Apply(u, db.now().UTC())
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET name = ?, theme_color = ?, custom_color = ?, updated_at = ?
			 WHERE id = ?`,
			u.Name,
			u.ThemeColor,
			u.CustomColor,
			formatTime(u.UpdatedAt),
			u.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", id, err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u                    model.User
		createdAt, updatedAt string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.ThemeColor,
		&u.CustomColor,
		&u.TotalEntries,
		&u.WritingStreak,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

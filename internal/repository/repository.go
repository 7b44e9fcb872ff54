// Package repository defines the storage contracts the services depend on.
//
// Implementations live in sub-packages (sqlite, jsonfile, redis). Every
// implementation must make each method one isolated unit: an entry
// mutation and the statistics refresh it triggers are observed together or
// not at all.
package repository

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sakif/chronicle/internal/model"
)

// SortOrder is the order entries are listed in by their Date.
type SortOrder int

const (
	SortDateDesc SortOrder = iota
	SortDateAsc
)

// ParseSort reads the API's sort parameter. An empty value is "-date";
// any value with a leading '-' is descending, anything else ascending.
func ParseSort(s string) SortOrder {
	if s == "" || s[0] == '-' {
		return SortDateDesc
	}
	return SortDateAsc
}

// ListOptions controls ListEntries. A Limit of zero means no limit.
type ListOptions struct {
	Sort  SortOrder
	Limit int
}

// UserRepository stores accounts. Accounts are never deleted.
type UserRepository interface {
	// GetOrCreateUserByEmail returns the user owning the normalized email,
	// creating it from the given name when absent.
	GetOrCreateUserByEmail(ctx context.Context, email, name string) (*model.User, error)
	// GetUserByID returns apperror.ErrNotFound for an unknown id.
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
}

// EntryRepository stores journal entries. Every method is scoped to one
// user: an entry that belongs to someone else is apperror.ErrNotFound.
// Mutations also refresh the owner's TotalEntries and WritingStreak.
type EntryRepository interface {
	ListEntries(ctx context.Context, userID string, opts ListOptions) ([]model.Entry, error)
	// CreateEntry assigns ID and timestamps to entry, stores it, and
	// refreshes the owner's statistics.
	CreateEntry(ctx context.Context, userID string, entry *model.Entry) error
	UpdateEntry(ctx context.Context, userID, id string, patch model.EntryPatch) (*model.Entry, error)
	DeleteEntry(ctx context.Context, userID, id string) error
}

// SessionRepository stores login sessions keyed by token hash.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	// GetSession returns apperror.ErrNotFound for an unknown or expired
	// session.
	GetSession(ctx context.Context, tokenHash string) (*model.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	// DeleteExpiredSessions removes sessions that expired before now and
	// reports how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store is a complete storage backend.
type Store interface {
	UserRepository
	EntryRepository
	SessionRepository
	Close() error
}

// WithSessions returns a Store that serves users and entries from primary
// and sessions from sessions. Close closes both.
func WithSessions(primary Store, sessions SessionRepository, sessionCloser io.Closer) Store {
	return &splitStore{
		UserRepository:    primary,
		EntryRepository:   primary,
		SessionRepository: sessions,
		closers:           []io.Closer{primary, sessionCloser},
	}
}

type splitStore struct {
	UserRepository
	EntryRepository
	SessionRepository
	closers []io.Closer
}

func (s *splitStore) Close() error {
	var errs []error
	for _, c := range s.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package model

import "time"

// Session maps a bearer token to the user it was issued to.
//
// The raw token is never stored. TokenHash is the digest produced by
// auth.HashToken and is the session's primary key in every store.
// A nil ExpiresAt means the session never expires.
type Session struct {
	TokenHash string     `json:"-"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// DefaultThemeColor is the theme a new account starts with.
const DefaultThemeColor = "purple"

// User represents a journaling account.
//
// Accounts are keyed by their normalized email: NormalizeEmail(email) is
// unique across all users. TotalEntries and WritingStreak are derived from
// the user's entries and are rewritten by the store after every entry
// mutation; nothing else should set them.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	ThemeColor    string    `json:"theme_color"`
	CustomColor   string    `json:"custom_color"`
	TotalEntries  int       `json:"total_entries"`
	WritingStreak int       `json:"writing_streak"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser builds an account for a normalized email with zeroed statistics.
// An empty name falls back to the email's local part.
func NewUser(email, name string, now time.Time) *User {
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return &User{
		Email:      email,
		Name:       name,
		ThemeColor: DefaultThemeColor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// UserPatch holds the profile fields a user may change about themselves.
// Nil fields are left untouched.
type UserPatch struct {
	Name        *string `json:"name"`
	ThemeColor  *string `json:"theme_color"`
	CustomColor *string `json:"custom_color"`
}

// Apply copies the set fields onto u and bumps UpdatedAt.
func (p UserPatch) Apply(u *User, now time.Time) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.ThemeColor != nil {
		u.ThemeColor = *p.ThemeColor
	}
	if p.CustomColor != nil {
		u.CustomColor = *p.CustomColor
	}
	u.UpdatedAt = now
}

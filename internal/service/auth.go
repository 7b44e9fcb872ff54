package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/auth"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

// Profile field limits, in characters.
const (
	MaxNameLength  = 100
	MaxColorLength = 64
)

// AuthService handles login, session checks and the user's own profile.
//
//	AuthHandler (HTTP) → AuthService → UserRepository
//	                                 ↘ SessionRepository
//
// Sessions are opaque tokens: the client holds the token, the store holds
// only auth.HashToken(token).
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	ttl      time.Duration
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithSessionTTL sets how long a session lives. Zero means forever.
func WithSessionTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) { s.ttl = ttl }
}

// WithAuthClock overrides the clock used for session timestamps.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// WithAuthRecorder reports logins to r.
func WithAuthRecorder(r Recorder) AuthOption {
	return func(s *AuthService) { s.recorder = recorderOrNop(r) }
}

// NewAuthService returns an AuthService. Sessions never expire unless
// WithSessionTTL is given.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:    users,
		sessions: sessions,
		now:      time.Now,
		recorder: nopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login finds or creates the account for email and issues a new session
// token for it. There is no password: the email is the identity.
func (s *AuthService) Login(ctx context.Context, email, name string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}

	user, err := s.users.GetOrCreateUserByEmail(ctx, email, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("service/auth: finding user: %w", err)
	}

	token, err := auth.NewToken()
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	now := s.now().UTC()
	session := &model.Session{
		TokenHash: auth.HashToken(token),
		UserID:    user.ID,
		CreatedAt: now,
	}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		session.ExpiresAt = &exp
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for user %s: %w", user.ID, err)
	}

	s.recorder.Login()
	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &LoginResult{Token: token, User: user}, nil
}

// Authenticate resolves a raw token to its user ID. Unknown and expired
// tokens are both apperror.ErrUnauthorized; storage failures are passed
// through so they surface as 500 rather than a misleading 401.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperror.Unauthorized()
	}

	session, err := s.sessions.GetSession(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized()
		}
		return "", fmt.Errorf("service/auth: looking up session: %w", err)
	}
	return session.UserID, nil
}

// Logout revokes token. Revoking an unknown token succeeds.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.DeleteSession(ctx, auth.HashToken(token)); err != nil {
		return fmt.Errorf("service/auth: deleting session: %w", err)
	}
	return nil
}

// Me returns the authenticated user's record.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// UpdateMe applies a profile patch. Only name, theme_color and
// custom_color can change; everything else in the request is ignored by
// construction of model.UserPatch.
func (s *AuthService) UpdateMe(ctx context.Context, userID string, patch model.UserPatch) (*model.User, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if utf8.RuneCountInString(name) > MaxNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("Name must be at most %d characters", MaxNameLength))
		}
		patch.Name = &name
	}
	for field, v := range map[string]*string{"theme_color": patch.ThemeColor, "custom_color": patch.CustomColor} {
		if v != nil && utf8.RuneCountInString(*v) > MaxColorLength {
			return nil, apperror.ValidationFailed(field,
				fmt.Sprintf("%s must be at most %d characters", field, MaxColorLength))
		}
	}

	user, err := s.users.UpdateUser(ctx, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("service/auth: updating user %s: %w", userID, err)
	}
	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

package auth

import (
	"context"
	"net/http"

	"github.com/sakif/chronicle/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create one, so no other package can read or shadow
// the values stored under it.
type contextKey string

const (
	userIDKey contextKey = "userID"
	tokenKey  contextKey = "token"
	holderKey contextKey = "userHolder"
)

// Authenticator resolves a raw bearer token to the user it was issued to.
// It returns an error wrapping apperror.ErrUnauthorized for unknown or
// expired tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// ErrorWriter renders an error response. The handler package supplies the
// JSON envelope writer.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the bearer token, resolves it with authn and stores the user ID
// and raw token in the request context. Missing, malformed, unknown and
// expired tokens all produce the same 401 and stop the chain before any
// handler (or method check) runs.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(authn Authenticator, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				fail(w, r, apperror.Unauthorized())
				return
			}

			userID, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				fail(w, r, err)
				return
			}

			if h, ok := r.Context().Value(holderKey).(*UserHolder); ok {
				h.userID = userID
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID. Tests use it to call
// handlers without going through RequireAuth.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns ("", false) if the request did not pass through RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// TokenFromContext returns the raw bearer token RequireAuth accepted.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// UserHolder lets middleware that runs BEFORE RequireAuth learn who the
// request belonged to once the handler chain returns.
type UserHolder struct {
	userID string
}

// WithUserHolder returns a copy of ctx carrying an empty holder that
// RequireAuth will fill in.
func WithUserHolder(ctx context.Context) (context.Context, *UserHolder) {
	h := &UserHolder{}
	return context.WithValue(ctx, holderKey, h), h
}

// UserID returns the authenticated user, or "" if the request never
// passed RequireAuth.
func (h *UserHolder) UserID() string {
	return h.userID
}

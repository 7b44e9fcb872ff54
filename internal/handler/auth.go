package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/auth"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/service"
)

// AuthHandler serves login, logout and the caller's own profile.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → find-or-create the account and issue a bearer token
//   - HandleLogout   → revoke the presented token
//   - HandleMe       → return the authenticated user
//   - HandleUpdateMe → patch name / theme_color / custom_color
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler returns the handlers for the /auth routes.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandleLogin logs a user in by email.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email": "a@x.com", "name": "Ada"}   (name optional)
// RESPONSE:     {"token": "...", "user": {...}}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Name)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout revokes the token the request was authenticated with.
//
// HTTP: POST /auth/logout
// Auth: Required
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		WriteError(w, r, apperror.Unauthorized())
		return
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /auth/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe patches the authenticated user's profile. Unknown fields,
// including the derived statistics, are ignored.
//
// HTTP: PATCH /auth/me
// Auth: Required
// REQUEST BODY: {"name": "...", "theme_color": "...", "custom_color": "..."}
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var patch model.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.svc.UpdateMe(r.Context(), userID, patch)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// requireUserID reads the user ID RequireAuth stored in the context.
func requireUserID(r *http.Request) (string, error) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized()
	}
	return userID, nil
}

package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/service"
)

// EntryHandler serves the journal entry endpoints. Every route is
// protected; the user ID always comes from the session, never the body.
type EntryHandler struct {
	svc    *service.EntryService
	logger *slog.Logger
}

// NewEntryHandler returns the handlers for /entries and /entries/{id}.
func NewEntryHandler(svc *service.EntryService, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{svc: svc, logger: logger}
}

// HandleList returns the caller's entries.
//
// HTTP: GET /entries?sort=-date&limit=10
//
//	sort   "-date" (default, newest first) or "date" (oldest first)
//	limit  non-negative integer, 0 or absent means all
func (h *EntryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	entries, err := h.svc.List(r.Context(), userID, r.URL.Query().Get("sort"), limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleCreate stores a new entry and returns it.
//
// HTTP: POST /entries
// REQUEST BODY: any subset of the entry fields; "tags" is accepted as an
// alias for "themes".
func (h *EntryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var in model.EntryInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	entry, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleUpdate patches one of the caller's entries.
//
// HTTP: PATCH /entries/{id}
func (h *EntryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var in model.EntryInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	entry, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleDelete removes one of the caller's entries.
//
// HTTP: DELETE /entries/{id}
// RESPONSE: {"ok": true}
func (h *EntryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed("limit", "limit must be a non-negative integer")
	}
	return n, nil
}

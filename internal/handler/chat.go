package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/chronicle/internal/service"
)

// ChatHandler bridges the journaling companion.
type ChatHandler struct {
	svc    *service.ChatService
	logger *slog.Logger
}

// NewChatHandler returns the handler for POST /ai/chat.
func NewChatHandler(svc *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// ChatRequest is the body of POST /ai/chat.
type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// ChatResponse wraps the companion's reply.
type ChatResponse struct {
	Data string `json:"data"`
}

// HandleChat answers a prompt.
//
// HTTP: POST /ai/chat
// Auth: Required
// REQUEST BODY: {"prompt": "I had a rough day"}
// RESPONSE:     {"data": "..."}
//
// An upstream failure is a 502 whose "data" carries the upstream's own
// error payload.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	reply, err := h.svc.Reply(r.Context(), userID, req.Prompt)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Data: reply})
}

// HandleHealth reports liveness.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

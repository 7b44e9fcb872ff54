package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/ai"
	"github.com/sakif/chronicle/internal/handler"
)

func TestHandleChat_Fallback(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := call(env.chat.HandleChat, http.MethodPost, "/ai/chat", "u1", `{"prompt":"rough day"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ai.FallbackReply, decode[handler.ChatResponse](t, rr).Data)

	rr = call(env.chat.HandleChat, http.MethodPost, "/ai/chat", "u1", `{"prompt":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Prompt is required", decode[map[string]any](t, rr)["message"])
}

func TestHandleChat_Upstream(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "reply",
			status:     http.StatusOK,
			body:       `{"choices":[{"message":{"content":"  Breathe.  "}}]}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"data":"Breathe."}`,
		},
		{
			name:       "upstream error payload is passed through",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"message":"Rate limit reached","data":{"error":{"message":"Rate limit reached","type":"requests"}}}`,
		},
		{
			name:       "non-JSON upstream error",
			status:     http.StatusInternalServerError,
			body:       `<html>oops</html>`,
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"message":"OpenAI request failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer upstream.Close()

			env := newTestEnv(t, ai.New(ai.Config{APIKey: "sk-test", BaseURL: upstream.URL, HTTPClient: upstream.Client()}))
			rr := call(env.chat.HandleChat, http.MethodPost, "/ai/chat", "u1", `{"prompt":"hi"}`)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
		})
	}
}

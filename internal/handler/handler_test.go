package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/ai"
	"github.com/sakif/chronicle/internal/auth"
	"github.com/sakif/chronicle/internal/handler"
	"github.com/sakif/chronicle/internal/repository/sqlite"
	"github.com/sakif/chronicle/internal/service"
)

// fixedNow is the clock of every test store: entries created "now" land
// on 2024-03-10 and count toward today's streak.
var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	auth    *handler.AuthHandler
	entries *handler.EntryHandler
	chat    *handler.ChatHandler
	authSvc *service.AuthService
}

func newTestEnv(t *testing.T, completer ai.Completer) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(":memory:", sqlite.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if completer == nil {
		completer = ai.Fallback{}
	}

	authSvc := service.NewAuthService(store, store, logger, service.WithAuthClock(func() time.Time { return fixedNow }))
	return &testEnv{
		auth:    handler.NewAuthHandler(authSvc, logger),
		entries: handler.NewEntryHandler(service.NewEntryService(store, nil, logger), logger),
		chat:    handler.NewChatHandler(service.NewChatService(completer, nil, logger), logger),
		authSvc: authSvc,
	}
}

// login creates an account through the handler and returns its id and token.
func (e *testEnv) login(t *testing.T, email string) (userID, token string) {
	t.Helper()
	rr := call(e.auth.HandleLogin, http.MethodPost, "/auth/login", "", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res.User.ID, res.Token
}

// call invokes h directly. userID, when set, is placed in the context the
// way RequireAuth would. body is JSON-encoded unless it is already a string.
func call(h http.HandlerFunc, method, target, userID string, body any, params ...string) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")

	ctx := req.Context()
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for i := 0; i+1 < len(params); i += 2 {
			rctx.URLParams.Add(params[i], params[i+1])
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}

	rr := httptest.NewRecorder()
	h(rr, req.WithContext(ctx))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

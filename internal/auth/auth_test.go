package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/apperror"
)

func TestNewToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err, "token must be unpadded base64url")
		assert.Len(t, raw, TokenBytes)
		assert.False(t, seen[tok], "duplicate token")
		seen[tok] = true
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("token-a"))
	assert.NotEqual(t, a, HashToken("token-b"))
	assert.NotContains(t, a, "token-a")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", ""},
		{"valid", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", ""},
		{"basic scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
		{"empty token", "Bearer ", ""},
		{"double space", "Bearer  abc123", ""},
		{"trailing text ignored", "Bearer abc123 extra", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, BearerToken(r))
		})
	}
}

type fakeAuthenticator map[string]string

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", apperror.Unauthorized()
}

func TestRequireAuth(t *testing.T) {
	authn := fakeAuthenticator{"good": "user-1"}
	fail := func(w http.ResponseWriter, _ *http.Request, err error) {
		w.WriteHeader(apperror.Status(err))
	}

	var gotUser, gotToken string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserIDFromContext(r.Context())
		gotToken, _ = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireAuth(authn, fail)(next)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantUser string
	}{
		{"no header", "", http.StatusUnauthorized, ""},
		{"malformed", "Token good", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer bad", http.StatusUnauthorized, ""},
		{"valid token", "Bearer good", http.StatusNoContent, "user-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotToken = "", ""
			r := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantUser != "" {
				assert.Equal(t, "good", gotToken)
			}
		})
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserIDFromContext(WithUserID(context.Background(), ""))
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(context.Background(), "u"))
	assert.True(t, ok)
	assert.Equal(t, "u", id)
}

func TestRequireAuth_FillsHolder(t *testing.T) {
	h := RequireAuth(fakeAuthenticator{"good": "user-1"}, func(w http.ResponseWriter, _ *http.Request, err error) {
		w.WriteHeader(apperror.Status(err))
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for header, want := range map[string]string{"Bearer good": "user-1", "Bearer bad": ""} {
		ctx, holder := WithUserHolder(context.Background())
		r := httptest.NewRequest(http.MethodGet, "/me", nil).WithContext(ctx)
		r.Header.Set("Authorization", header)
		h.ServeHTTP(httptest.NewRecorder(), r)
		assert.Equal(t, want, holder.UserID(), header)
	}
}

package client_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/ai"
	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/config"
	"github.com/sakif/chronicle/internal/server"
	"github.com/sakif/chronicle/pkg/client"
)

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func newTestServer(t *testing.T, opts ...server.Option) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		StoreDriver:            config.StoreSQLite,
		DBPath:                 ":memory:",
		SessionStore:           config.SessionsDB,
		SessionTTL:             time.Hour,
		SessionCleanupInterval: time.Hour,
		AITimeout:              time.Second,
		RateLimitGeneral:       1000,
		RateLimitAI:            1000,
	}
	s, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		assert.NoError(t, s.Close())
	})
	return ts
}

func TestClient_JournalRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := client.New(ts.URL+"/", client.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	res, err := c.Login(ctx, "a@x.com", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, res.Token, c.Token())
	assert.Zero(t, res.User.TotalEntries)

	first, err := c.CreateEntry(ctx, client.EntryFields{
		Title: client.String("Day one"),
		Date:  "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "Day one", first.Title)
	assert.Equal(t, []string{}, first.Themes)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, me.TotalEntries)

	entries, err := c.ListEntries(ctx, "-date", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.ID, entries[0].ID)

	require.NoError(t, c.DeleteEntry(ctx, first.ID))

	entries, err = c.ListEntries(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	me, err = c.Me(ctx)
	require.NoError(t, err)
	assert.Zero(t, me.TotalEntries)
}

func TestClient_SortLimitAndStreak(t *testing.T) {
	ts := newTestServer(t)
	c := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	_, err := c.Login(ctx, "streak@x.com", "")
	require.NoError(t, err)

	today := time.Now().UTC()
	for _, d := range []time.Time{today.AddDate(0, 0, -1), today, today.AddDate(0, 0, -2)} {
		_, err := c.CreateEntry(ctx, client.EntryFields{Date: d.Format(time.RFC3339)})
		require.NoError(t, err)
	}

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, me.TotalEntries)
	assert.Equal(t, 3, me.WritingStreak)

	desc, err := c.ListEntries(ctx, "-date", 0)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	for i := 1; i < len(desc); i++ {
		assert.False(t, desc[i].Date.After(desc[i-1].Date))
	}

	asc, err := c.ListEntries(ctx, "date", 2)
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.True(t, asc[0].Date.Before(asc[1].Date))
	assert.Equal(t, "Untitled", asc[0].Title)
}

func TestClient_UpdateEntry(t *testing.T) {
	ts := newTestServer(t)
	c := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "")
	require.NoError(t, err)

	e, err := c.CreateEntry(ctx, client.EntryFields{
		Title:  client.String("Draft"),
		Mood:   client.String("calm"),
		Themes: client.Strings("work"),
	})
	require.NoError(t, err)
	require.NotNil(t, e.Mood)

	updated, err := c.UpdateEntry(ctx, e.ID, client.EntryFields{
		Milestone: client.Bool(true),
		ClearMood: true,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Mood)
	assert.True(t, updated.Milestone)
	assert.Equal(t, "Draft", updated.Title)
	assert.Equal(t, []string{"work"}, updated.Themes)

	_, err = c.UpdateEntry(ctx, "missing", client.EntryFields{Title: client.String("x")})
	assert.Equal(t, http.StatusNotFound, client.StatusOf(err))

	err = c.DeleteEntry(ctx, "missing")
	assert.Equal(t, http.StatusNotFound, client.StatusOf(err))
}

func TestClient_UpdateMe(t *testing.T) {
	ts := newTestServer(t)
	c := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "Ada")
	require.NoError(t, err)

	u, err := c.UpdateMe(ctx, client.UserPatch{ThemeColor: client.String("teal")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "teal", u.ThemeColor)
}

func TestClient_Logout(t *testing.T) {
	ts := newTestServer(t)
	c := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	res, err := c.Login(ctx, "a@x.com", "")
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.Token())
	assert.NoError(t, c.Logout(ctx), "logging out twice is a no-op")

	_, err = c.Me(ctx)
	assert.Equal(t, http.StatusUnauthorized, client.StatusOf(err))

	// The revoked token stays revoked on the server.
	stale := client.New(ts.URL, client.WithHTTPClient(ts.Client()), client.WithToken(res.Token))
	_, err = stale.ListEntries(ctx, "", 0)
	assert.Equal(t, http.StatusUnauthorized, client.StatusOf(err))
}

func TestClient_ChatFallback(t *testing.T) {
	ts := newTestServer(t)
	c := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "")
	require.NoError(t, err)

	reply, err := c.Chat(ctx, "I'm stressed")
	require.NoError(t, err)
	assert.Equal(t, ai.FallbackReply, reply)
}

func TestClient_ErrorCarriesEnvelope(t *testing.T) {
	upstream := map[string]any{"error": map[string]any{"message": "quota exceeded"}}
	ts := newTestServer(t, server.WithCompleter(completerFunc(func(context.Context, string) (string, error) {
		return "", apperror.Gateway("quota exceeded", upstream)
	})))
	c := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "")
	require.NoError(t, err)

	_, err = c.Chat(ctx, "hello")
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "quota exceeded", apiErr.Message)

	data, err := json.Marshal(apiErr.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"message":"quota exceeded"}}`, string(data))

	_, err = c.CreateEntry(ctx, client.EntryFields{Date: "yesterday"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "Invalid date")
}

func TestClient_NonJSONErrorUsesStatusText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream proxy down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := client.New(ts.URL, client.WithHTTPClient(ts.Client())).Me(context.Background())
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "Service Unavailable", apiErr.Message)
	assert.Nil(t, apiErr.Data)
}

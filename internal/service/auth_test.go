package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/auth"
	"github.com/sakif/chronicle/internal/model"
)

func newTestAuthService(t *testing.T, opts ...AuthOption) (*AuthService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	opts = append([]AuthOption{WithAuthClock(func() time.Time { return store.now })}, opts...)
	return NewAuthService(store, store, discardLogger(), opts...), store
}

func TestLogin_IssuesTokenAndSession(t *testing.T) {
	rec := &fakeRecorder{}
	svc, store := newTestAuthService(t, WithSessionTTL(time.Hour), WithAuthRecorder(rec))

	res, err := svc.Login(context.Background(), " A@X.com", "")
	require.NoError(t, err)

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "a@x.com", res.User.Email)
	assert.Equal(t, "a", res.User.Name)
	assert.Zero(t, res.User.TotalEntries)
	assert.Equal(t, 1, rec.logins)

	// Only the hash reaches the store.
	_, rawStored := store.sessions[res.Token]
	assert.False(t, rawStored)
	sess, ok := store.sessions[auth.HashToken(res.Token)]
	require.True(t, ok)
	assert.Equal(t, res.User.ID, sess.UserID)
	require.NotNil(t, sess.ExpiresAt)
	assert.Equal(t, store.now.Add(time.Hour), *sess.ExpiresAt)
}

func TestLogin_SameEmailSameUserNewToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, "a@x.com", "")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "A@X.COM", "")
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestLogin_ZeroTTLNeverExpires(t *testing.T) {
	svc, store := newTestAuthService(t)
	res, err := svc.Login(context.Background(), "a@x.com", "")
	require.NoError(t, err)
	assert.Nil(t, store.sessions[auth.HashToken(res.Token)].ExpiresAt)
}

func TestLogin_Validation(t *testing.T) {
	svc, store := newTestAuthService(t)
	for _, email := range []string{"", "   "} {
		_, err := svc.Login(context.Background(), email, "x")
		assert.ErrorIs(t, err, apperror.ErrValidation)
	}
	assert.Empty(t, store.users)
	assert.Empty(t, store.sessions)
}

func TestLogin_RepositoryError(t *testing.T) {
	svc, store := newTestAuthService(t)
	store.failWith = errDiskFull
	_, err := svc.Login(context.Background(), "a@x.com", "")
	assert.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, store.sessions)
}

func TestAuthenticate(t *testing.T) {
	svc, store := newTestAuthService(t, WithSessionTTL(time.Hour))
	ctx := context.Background()
	res, err := svc.Login(ctx, "a@x.com", "")
	require.NoError(t, err)

	userID, err := svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	store.now = store.now.Add(time.Hour)
	_, err = svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized, "expired session")
}

func TestAuthenticate_StoreFailureIsNotUnauthorized(t *testing.T) {
	svc, store := newTestAuthService(t)
	store.failWith = errDiskFull
	_, err := svc.Authenticate(context.Background(), "token")
	assert.ErrorIs(t, err, errDiskFull)
	assert.NotErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogout_RevokesToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "a@x.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Token))
	_, err = svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	assert.NoError(t, svc.Logout(ctx, res.Token), "logout is idempotent")
}

func TestMe(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "a@x.com", "Ada")
	require.NoError(t, err)

	me, err := svc.Me(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", me.Name)

	_, err = svc.Me(ctx, "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateMe(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "a@x.com", "")
	require.NoError(t, err)

	tests := []struct {
		name      string
		patch     model.UserPatch
		wantErr   error
		wantName  string
		wantTheme string
	}{
		{
			name:      "name is trimmed",
			patch:     model.UserPatch{Name: ptr("  Ada  ")},
			wantName:  "Ada",
			wantTheme: model.DefaultThemeColor,
		},
		{
			name:      "theme only",
			patch:     model.UserPatch{ThemeColor: ptr("teal")},
			wantName:  "Ada",
			wantTheme: "teal",
		},
		{
			name:      "limit counts characters not bytes",
			patch:     model.UserPatch{Name: ptr(strings.Repeat("日", MaxNameLength))},
			wantName:  strings.Repeat("日", MaxNameLength),
			wantTheme: "teal",
		},
		{
			name:      "name can be changed back",
			patch:     model.UserPatch{Name: ptr("Ada")},
			wantName:  "Ada",
			wantTheme: "teal",
		},
		{
			name:    "multibyte name too long",
			patch:   model.UserPatch{Name: ptr(strings.Repeat("日", MaxNameLength+1))},
			wantErr: apperror.ErrValidation,
		},
		{
			name:    "name too long",
			patch:   model.UserPatch{Name: ptr(strings.Repeat("x", MaxNameLength+1))},
			wantErr: apperror.ErrValidation,
		},
		{
			name:    "custom color too long",
			patch:   model.UserPatch{CustomColor: ptr(strings.Repeat("x", MaxColorLength+1))},
			wantErr: apperror.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.UpdateMe(ctx, res.User.ID, tt.patch)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, u.Name)
			assert.Equal(t, tt.wantTheme, u.ThemeColor)
		})
	}
}

package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, time.Hour), mr
}

func TestSessionIssueResolveRoundtrip(t *testing.T) {
	sm, _ := testSessionManager(t)
	ctx := context.Background()

	tenant := int64(3)
	token, err := sm.Issue(ctx, Principal{UserID: 42, TenantID: &tenant, TenantAdmin: true})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	p, err := sm.Resolve(ctx, token)
	require.NoError(t, err)
	require.EqualValues(t, 42, p.UserID)
	require.Equal(t, tenant, *p.TenantID)
	require.True(t, p.TenantAdmin)
}

func TestSessionResolveUnknownToken(t *testing.T) {
	sm, _ := testSessionManager(t)

	_, err := sm.Resolve(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = sm.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSessionExpiry(t *testing.T) {
	sm, mr := testSessionManager(t)
	ctx := context.Background()

	token, err := sm.Issue(ctx, Principal{UserID: 7})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = sm.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSessionRevoke(t *testing.T) {
	sm, _ := testSessionManager(t)
	ctx := context.Background()

	token, err := sm.Issue(ctx, Principal{UserID: 7})
	require.NoError(t, err)

	require.NoError(t, sm.Revoke(ctx, token))
	_, err = sm.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrUnauthorized)

	// Revoking twice or revoking nothing is harmless.
	require.NoError(t, sm.Revoke(ctx, token))
	require.NoError(t, sm.Revoke(ctx, ""))
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, TokenFromRequest(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer  tok-123 ")
	require.Equal(t, "tok-123", TokenFromRequest(req))
}

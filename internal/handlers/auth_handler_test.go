package handlers

import (
	"testing"
	"time"

	"github.com/nimasrn/crm-campaigns/internal/auth"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens(t *testing.T, now time.Time) *auth.Tokens {
	t.Helper()
	tokens, err := auth.New(auth.Config{
		Secret: "test-secret-test-secret-test-secret",
		Issuer: "crm",
		TTL:    time.Hour,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return tokens
}

func TestRequireAuth(t *testing.T) {
	tokens := newTokens(t, time.Now())
	protect := RequireAuth(tokens)
	me := protect(NewAuthHandler().Me)

	t.Run("valid token", func(t *testing.T) {
		raw, _, err := tokens.Issue(auth.Principal{ID: "u-1", Email: "ops@example.com", Role: auth.RoleAdmin})
		require.NoError(t, err)

		ctx := setupTestContext("GET", "/api/auth/me", nil)
		ctx.Request.Header.Set("Authorization", "Bearer "+raw)
		me(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var p auth.Principal
		decodeBody(t, ctx, &p)
		assert.Equal(t, "u-1", p.ID)
		assert.Equal(t, "ops@example.com", p.Email)
	})

	t.Run("missing header", func(t *testing.T) {
		ctx := setupTestContext("GET", "/api/auth/me", nil)
		me(ctx)
		assert.Equal(t, 401, ctx.Response.StatusCode())
	})

	t.Run("garbage token", func(t *testing.T) {
		ctx := setupTestContext("GET", "/api/auth/me", nil)
		ctx.Request.Header.Set("Authorization", "Bearer not.a.jwt")
		me(ctx)
		assert.Equal(t, 401, ctx.Response.StatusCode())
		assert.Equal(t, "invalid token", errorBody(t, ctx).Error)
	})

	t.Run("expired token", func(t *testing.T) {
		old := newTokens(t, time.Now().Add(-2*time.Hour))
		raw, _, err := old.Issue(auth.Principal{ID: "u-1"})
		require.NoError(t, err)

		ctx := setupTestContext("GET", "/api/auth/me", nil)
		ctx.Request.Header.Set("Authorization", "Bearer "+raw)
		me(ctx)
		assert.Equal(t, 401, ctx.Response.StatusCode())
		assert.Equal(t, "token expired", errorBody(t, ctx).Error)
	})

	t.Run("principal reaches the service context", func(t *testing.T) {
		raw, _, err := tokens.Issue(auth.Principal{ID: "u-9"})
		require.NoError(t, err)

		var seen string
		handler := protect(func(ctx *xhttp.RequestCtx) {
			p, ok := auth.FromContext(requestContext(ctx))
			require.True(t, ok)
			seen = p.ID
		})
		ctx := setupTestContext("GET", "/api/campaigns", nil)
		ctx.Request.Header.Set("Authorization", "Bearer "+raw)
		handler(ctx)
		assert.Equal(t, "u-9", seen)
	})
}

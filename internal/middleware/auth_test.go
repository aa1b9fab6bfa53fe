package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/token"
)

type sessionMap map[string]*domain.Session

func (m sessionMap) Get(_ context.Context, id string) (*domain.Session, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

func issue(t *testing.T, tokens *token.Manager, sessionID, userID string) string {
	t.Helper()
	raw, err := tokens.Issue(&domain.Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		User:      &domain.User{ID: userID, Role: "admin"},
	})
	require.NoError(t, err)
	return raw
}

func TestJWTAuth(t *testing.T) {
	tokens, err := token.NewManager("0123456789abcdef0123456789abcdef", "portal-identity")
	require.NoError(t, err)
	sessions := sessionMap{"s1": {ID: "s1", UserID: "u1"}}
	valid := issue(t, tokens, "s1", "u1")
	revoked := issue(t, tokens, "s2", "u1")

	var seen map[string]string
	handler := JWTAuth(tokens, sessions, nil)(func(ctx *fasthttp.RequestCtx) {
		seen = map[string]string{
			HeaderUserID:    string(ctx.Request.Header.Peek(HeaderUserID)),
			HeaderSessionID: string(ctx.Request.Header.Peek(HeaderSessionID)),
			HeaderUserRole:  string(ctx.Request.Header.Peek(HeaderUserRole)),
			HeaderToken:     string(ctx.Request.Header.Peek(HeaderToken)),
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: fasthttp.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: fasthttp.StatusUnauthorized},
		{name: "revoked", header: "Bearer " + revoked, status: fasthttp.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, status: fasthttp.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			var ctx fasthttp.RequestCtx
			ctx.Request.SetRequestURI("/api/v1/profile")
			ctx.Request.Header.Set(HeaderUserID, "spoofed")
			if tc.header != "" {
				ctx.Request.Header.Set("Authorization", tc.header)
			}

			handler(&ctx)

			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			if tc.status != fasthttp.StatusOK {
				assert.Nil(t, seen)
				return
			}
			assert.Equal(t, "u1", seen[HeaderUserID])
			assert.Equal(t, "s1", seen[HeaderSessionID])
			assert.Equal(t, "admin", seen[HeaderUserRole])
			assert.Equal(t, valid, seen[HeaderToken])
		})
	}
}

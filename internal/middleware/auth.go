package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/token"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderToken     = "X-Session-Token"
)

// SessionLookup reports whether a server-side session still exists.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
}

// JWTAuth verifies the bearer token and rejects sessions that were revoked on
// the server. Identity is forwarded to handlers through request headers.
func JWTAuth(tokens *token.Manager, sessions SessionLookup, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			// Identity headers are only ever set here.
			ctx.Request.Header.Del(HeaderUserID)
			ctx.Request.Header.Del(HeaderSessionID)
			ctx.Request.Header.Del(HeaderUserRole)
			ctx.Request.Header.Del(HeaderToken)

			tokenString := extractToken(ctx)
			if tokenString == "" {
				unauthorized(ctx)
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				logger.Warn("invalid jwt token", zap.Error(err))
				unauthorized(ctx)
				return
			}

			if sessions != nil {
				lookupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				session, err := sessions.Get(lookupCtx, claims.SessionID)
				cancel()
				if err != nil || session.UserID != claims.UserID {
					logger.Info("rejected revoked session", zap.String("session_id", claims.SessionID), zap.Error(err))
					unauthorized(ctx)
					return
				}
			}

			ctx.Request.Header.Set(HeaderUserID, claims.UserID)
			ctx.Request.Header.Set(HeaderSessionID, claims.SessionID)
			ctx.Request.Header.Set(HeaderUserRole, claims.Role)
			ctx.Request.Header.Set(HeaderToken, tokenString)

			next(ctx)
		}
	}
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString(`{"status":"error","code":"UNAUTHORIZED","error":"unauthorized"}`)
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

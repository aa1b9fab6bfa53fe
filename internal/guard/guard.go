// Package guard maps the session state to what a protected page may do.
package guard

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/usecase/session"
)

const principalKey = "portal.principal"

type DecisionKind string

const (
	Render    DecisionKind = "render"
	Redirect  DecisionKind = "redirect"
	Loading   DecisionKind = "loading"
	Forbidden DecisionKind = "forbidden"
)

// Decision is the outcome of a guard check.
type Decision struct {
	Kind     DecisionKind
	Required domain.Role
}

// Decide is pure: it only looks at the state it is given.
func Decide(state domain.AuthState, required domain.Role) Decision {
	d := Decision{Required: required}
	switch {
	case state.Kind == domain.AuthAuthenticating:
		d.Kind = Loading
	case !state.IsAuthenticated():
		d.Kind = Redirect
	case !domain.ResolveRole(state.User()).Allows(required):
		d.Kind = Forbidden
	default:
		d.Kind = Render
	}
	return d
}

// StateReader is satisfied by *session.Store.
type StateReader interface {
	State() domain.AuthState
}

type Config struct {
	SignInPath   string
	LoadingRetry time.Duration
}

// Guard executes decisions against fasthttp requests.
type Guard struct {
	reader StateReader
	cfg    Config
	logger *zap.Logger
}

func New(reader StateReader, cfg Config, logger *zap.Logger) *Guard {
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/signin"
	}
	if cfg.LoadingRetry <= 0 {
		cfg.LoadingRetry = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{reader: reader, cfg: cfg, logger: logger}
}

// Protect wraps a handler so it only runs when the current principal holds the
// required role. The state is read once per request.
func (g *Guard) Protect(required domain.Role) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			state := g.reader.State()
			decision := Decide(state, required)

			switch decision.Kind {
			case Render:
				ctx.SetUserValue(principalKey, session.PrincipalOf(state))
				next(ctx)
			case Redirect:
				if string(ctx.Path()) == g.cfg.SignInPath {
					ctx.SetUserValue(principalKey, session.PrincipalOf(state))
					next(ctx)
					return
				}
				g.redirect(ctx)
			case Loading:
				ctx.Response.Header.Set("Retry-After", strconv.Itoa(retrySeconds(g.cfg.LoadingRetry)))
				ctx.Response.Header.SetContentType("text/plain; charset=utf-8")
				ctx.SetStatusCode(fasthttp.StatusAccepted)
				ctx.SetBodyString("Checking your session...")
			case Forbidden:
				g.logger.Info("access denied",
					zap.String("path", string(ctx.Path())),
					zap.String("required", string(required)),
					zap.String("user_id", state.User().ID),
				)
				ctx.Response.Header.SetContentType("text/plain; charset=utf-8")
				ctx.SetStatusCode(fasthttp.StatusForbidden)
				ctx.SetBodyString("You do not have access to this page.")
			}
		}
	}
}

// Current returns the principal for handlers that are not behind Protect.
func (g *Guard) Current() session.Principal {
	return session.PrincipalOf(g.reader.State())
}

// PrincipalFrom returns the principal attached by Protect.
func PrincipalFrom(ctx *fasthttp.RequestCtx) (session.Principal, bool) {
	p, ok := ctx.UserValue(principalKey).(session.Principal)
	return p, ok
}

func (g *Guard) redirect(ctx *fasthttp.RequestCtx) {
	location := make([]byte, 0, len(g.cfg.SignInPath)+32)
	location = append(location, g.cfg.SignInPath...)
	location = append(location, "?next="...)
	location = fasthttp.AppendQuotedArg(location, ctx.RequestURI())

	ctx.Response.Header.SetBytesV(fasthttp.HeaderLocation, location)
	ctx.SetStatusCode(fasthttp.StatusFound)
}

func retrySeconds(d time.Duration) int {
	seconds := int(d / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

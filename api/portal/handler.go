// Package portal serves the portal's sign-in flow and the placeholder pages
// behind the route guard.
package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/api/transport"
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/guard"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/usecase/session"
)

// SessionService is the part of *session.Store the handlers drive.
type SessionService interface {
	State() domain.AuthState
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password, displayName string) (domain.SignUpResult, error)
	SignOut(ctx context.Context) error
	Reset() domain.AuthState
}

// View is the JSON body of a placeholder page.
type View struct {
	Section     string       `json:"section"`
	User        *domain.User `json:"user"`
	IsAdmin     bool         `json:"isAdmin"`
	IsModerator bool         `json:"isModerator"`
	Header      Header       `json:"header"`
}

// Form describes the sign-in or sign-up form and its last outcome.
type Form struct {
	Form   string          `json:"form"`
	Next   string          `json:"next"`
	State  domain.AuthKind `json:"state"`
	Reason string          `json:"reason,omitempty"`
	Header Header          `json:"header"`
}

type Handler struct {
	sessions   SessionService
	adapter    *httpcontext.Adapter
	logger     *zap.Logger
	signInPath string
}

func New(sessions SessionService, signInPath string, adapter *httpcontext.Adapter, logger *zap.Logger) *Handler {
	if signInPath == "" {
		signInPath = "/signin"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, adapter: adapter, logger: logger, signInPath: signInPath}
}

func (h *Handler) SignInForm(ctx *fasthttp.RequestCtx) {
	h.form(ctx, "signin")
}

func (h *Handler) SignUpForm(ctx *fasthttp.RequestCtx) {
	h.form(ctx, "signup")
}

func (h *Handler) form(ctx *fasthttp.RequestCtx, name string) {
	state := h.sessions.State()
	next := safeNext(ctx.QueryArgs().Peek("next"))
	if state.IsAuthenticated() {
		h.seeOther(ctx, next)
		return
	}
	respondJSON(ctx, http.StatusOK, transport.NewSuccess(Form{
		Form:   name,
		Next:   next,
		State:  state.Kind,
		Reason: state.Reason,
		Header: NewHeader(session.PrincipalOf(state), h.signInPath),
	}, nil))
}

// SignIn accepts a JSON body or an urlencoded form.
func (h *Handler) SignIn(ctx *fasthttp.RequestCtx) {
	var req transport.SignInRequest
	if !decode(ctx, &req, func(args *fasthttp.Args) {
		req.Email = string(args.Peek("email"))
		req.Password = string(args.Peek("password"))
	}) {
		h.invalid(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if _, err := h.sessions.SignIn(stdCtx, req.Email, req.Password); err != nil {
		h.fail(ctx, err)
		return
	}
	h.seeOther(ctx, safeNext(nextArg(ctx)))
}

func (h *Handler) SignUp(ctx *fasthttp.RequestCtx) {
	var req transport.SignUpRequest
	if !decode(ctx, &req, func(args *fasthttp.Args) {
		req.Email = string(args.Peek("email"))
		req.Password = string(args.Peek("password"))
		req.DisplayName = string(args.Peek("display_name"))
	}) {
		h.invalid(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.sessions.SignUp(stdCtx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	if result.PendingVerification {
		respondJSON(ctx, http.StatusAccepted, transport.NewSuccess(map[string]any{
			"pending_verification": true,
			"message":              "Check your inbox to verify your email, then sign in.",
		}, nil))
		return
	}
	h.seeOther(ctx, safeNext(nextArg(ctx)))
}

// SignOut always lands on the sign-in page. A failed remote revocation is
// reported in the log only since the local session is gone either way.
func (h *Handler) SignOut(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.sessions.SignOut(stdCtx); err != nil {
		h.logger.Warn("sign-out completed locally only", zap.Error(err))
	}
	h.seeOther(ctx, h.signInPath)
}

// Reset acknowledges a failed sign-in.
func (h *Handler) Reset(ctx *fasthttp.RequestCtx) {
	state := h.sessions.Reset()
	respondJSON(ctx, http.StatusOK, transport.NewSuccess(map[string]any{"state": state.Kind}, nil))
}

// Me returns the principal, signed in or not.
func (h *Handler) Me(ctx *fasthttp.RequestCtx) {
	principal := session.PrincipalOf(h.sessions.State())
	respondJSON(ctx, http.StatusOK, transport.NewSuccess(map[string]any{
		"principal": principal,
		"header":    NewHeader(principal, h.signInPath),
	}, nil))
}

// Page returns a placeholder view for a section behind the guard. Role flags
// come from the principal the guard derived for this request.
func (h *Handler) Page(section string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		principal, ok := guard.PrincipalFrom(ctx)
		if !ok {
			principal = session.PrincipalOf(h.sessions.State())
		}
		respondJSON(ctx, http.StatusOK, transport.NewSuccess(View{
			Section:     section,
			User:        principal.User,
			IsAdmin:     principal.IsAdmin,
			IsModerator: principal.IsModerator,
			Header:      NewHeader(principal, h.signInPath),
		}, nil))
	}
}

func (h *Handler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h *Handler) fail(ctx *fasthttp.RequestCtx, err error) {
	status, envelope := transport.ErrorEnvelope(err)
	respondJSON(ctx, status, envelope)
}

func (h *Handler) invalid(ctx *fasthttp.RequestCtx) {
	respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), domain.ErrInvalidPayload.Message, nil))
}

func (h *Handler) seeOther(ctx *fasthttp.RequestCtx, location string) {
	ctx.Response.Header.Set(fasthttp.HeaderLocation, location)
	ctx.SetStatusCode(fasthttp.StatusSeeOther)
}

func respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	transport.Write(ctx, status, payload)
}

func decode(ctx *fasthttp.RequestCtx, dst any, fromForm func(*fasthttp.Args)) bool {
	if strings.HasPrefix(string(ctx.Request.Header.ContentType()), "application/json") {
		return json.Unmarshal(ctx.PostBody(), dst) == nil
	}
	fromForm(ctx.PostArgs())
	return true
}

func nextArg(ctx *fasthttp.RequestCtx) []byte {
	if next := ctx.PostArgs().Peek("next"); len(next) > 0 {
		return next
	}
	return ctx.QueryArgs().Peek("next")
}

// safeNext only allows local absolute paths so the sign-in flow cannot be
// used as an open redirect.
func safeNext(raw []byte) string {
	next := string(raw)
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	return next
}

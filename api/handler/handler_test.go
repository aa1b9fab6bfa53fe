package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/infrastructure/monitor"
	"github.com/fastygo/portal/internal/middleware"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/repository"
	"github.com/fastygo/portal/usecase/securitylog"
)

type events struct {
	stored []domain.SecurityEvent
}

func (e *events) Append(_ context.Context, event *domain.SecurityEvent) error {
	e.stored = append(e.stored, *event)
	return nil
}

func (e *events) List(context.Context, repository.SecurityEventFilter) ([]domain.SecurityEvent, error) {
	return e.stored, nil
}

type users map[string]*domain.User

func (u users) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (u users) GetByEmail(context.Context, string) (*repository.UserRecord, error) {
	return nil, domain.ErrUserNotFound
}

func (u users) Create(context.Context, *repository.UserRecord) error { return nil }

func (u users) Upsert(context.Context, *domain.User) error { return nil }

func (u users) UpdateStatus(context.Context, string, string) error { return nil }

type fixedStatus monitor.Status

func (f fixedStatus) GetStatus() monitor.Status { return monitor.Status(f) }

type response struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
	Meta   json.RawMessage `json:"meta"`
}

func parse(t *testing.T, ctx *fasthttp.RequestCtx) response {
	t.Helper()
	var out response
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func newAuditHandler(store *events) *AuditHandler {
	directory := users{
		"admin":  {ID: "admin", Role: "admin", Status: domain.UserStatusActive},
		"member": {ID: "member", Role: "member", Status: domain.UserStatusActive},
	}
	return NewAuditHandler(securitylog.New(store, directory, nil, nil), httpcontext.NewAdapter(time.Second), nil)
}

func TestAuditIngest(t *testing.T) {
	store := &events{}
	h := newAuditHandler(store)

	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	body, _ := json.Marshal(domain.SecurityEvent{Kind: domain.EventUserLogin, ActorID: domain.ActorRef("member"), Timestamp: time.Now()})
	ctx.Request.SetBody(body)
	h.Ingest(&ctx)

	assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
	require.Len(t, store.stored, 1)
	assert.Equal(t, true, store.stored[0].Payload[securitylog.UnverifiedActorKey])
	assert.NotEmpty(t, ctx.Response.Header.Peek("X-Request-ID"))

	var bad fasthttp.RequestCtx
	bad.Request.SetBodyString(`{"kind":"password_changed","timestamp":"2026-01-01T00:00:00Z"}`)
	h.Ingest(&bad)
	assert.Equal(t, fasthttp.StatusBadRequest, bad.Response.StatusCode())
	assert.Equal(t, "INVALID", parse(t, &bad).Code)

	var garbage fasthttp.RequestCtx
	garbage.Request.SetBodyString(`not json`)
	h.Ingest(&garbage)
	assert.Equal(t, fasthttp.StatusBadRequest, garbage.Response.StatusCode())
}

func TestAuditListIsAdminOnly(t *testing.T) {
	h := newAuditHandler(&events{})

	list := func(userID string) *fasthttp.RequestCtx {
		var ctx fasthttp.RequestCtx
		ctx.Request.SetRequestURI("/api/v1/audit/events?kind=user_login&limit=5")
		ctx.Request.Header.Set(middleware.HeaderUserID, userID)
		h.List(&ctx)
		return &ctx
	}

	admin := list("admin")
	assert.Equal(t, fasthttp.StatusOK, admin.Response.StatusCode())
	assert.JSONEq(t, `[]`, string(parse(t, admin).Data))

	assert.Equal(t, fasthttp.StatusForbidden, list("member").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusUnauthorized, list("ghost").Response.StatusCode())
}

func TestHealth(t *testing.T) {
	healthy := fixedStatus{Online: true, Components: map[string]monitor.Component{"postgresql": {Healthy: true}}}
	var ok fasthttp.RequestCtx
	NewHealthHandler(healthy, nil, nil).Check(&ok)
	assert.Equal(t, fasthttp.StatusOK, ok.Response.StatusCode())

	degraded := fixedStatus{Components: map[string]monitor.Component{"redis": {Error: "connection refused"}}}
	var down fasthttp.RequestCtx
	NewHealthHandler(degraded, nil, nil).Check(&down)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, down.Response.StatusCode())
	out := parse(t, &down)
	assert.Equal(t, "DEGRADED", out.Code)
	assert.Contains(t, string(out.Meta), "connection refused")
}

func TestInternalErrorsAreLoggedNotExposed(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	base := newBaseHandler(nil, zap.New(core))

	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/api/v1/profile")
	base.respondError(&ctx, context.Background(), assert.AnError)

	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	assert.NotContains(t, string(ctx.Response.Body()), assert.AnError.Error())
	require.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestProfileRequiresIdentity(t *testing.T) {
	h := NewProfileHandler(nil, nil, nil)
	var ctx fasthttp.RequestCtx
	h.GetProfile(&ctx)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

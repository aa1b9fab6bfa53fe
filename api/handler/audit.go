package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/api/transport"
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/usecase/securitylog"
)

type AuditHandler struct {
	baseHandler
	uc *securitylog.UseCase
}

func NewAuditHandler(uc *securitylog.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Ingest a security event
// @Tags audit
// @Router /api/v1/audit/events [post]
func (h *AuditHandler) Ingest(ctx *fasthttp.RequestCtx) {
	var event domain.SecurityEvent
	if err := json.Unmarshal(ctx.PostBody(), &event); err != nil {
		h.invalidPayload(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stored, err := h.uc.Record(stdCtx, event)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusAccepted, map[string]string{"id": stored.ID})
}

// @Summary List security events, newest first (admin)
// @Tags audit
// @Router /api/v1/audit/events [get]
func (h *AuditHandler) List(ctx *fasthttp.RequestCtx) {
	userID, _ := identity(ctx)
	filter := transport.SecurityEventQuery(ctx.QueryArgs())

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	events, err := h.uc.List(stdCtx, userID, filter)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, events)
}

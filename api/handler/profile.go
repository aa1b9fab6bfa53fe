package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/api/transport"
	"github.com/fastygo/portal/pkg/httpcontext"
	profileUC "github.com/fastygo/portal/usecase/profile"
)

// ProfileHandler serves the signed-in user's own record.
type ProfileHandler struct {
	baseHandler
	uc *profileUC.UseCase
}

func NewProfileHandler(uc *profileUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Current user's profile
// @Tags profile
// @Success 200 {object} transport.Envelope
// @Router /api/v1/profile [get]
func (h *ProfileHandler) GetProfile(ctx *fasthttp.RequestCtx) {
	h.withUser(ctx, func(stdCtx context.Context, userID string) {
		user, err := h.uc.GetProfile(stdCtx, userID)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusOK, user)
	})
}

// @Summary Update display name and metadata
// @Tags profile
// @Accept json
// @Produce json
// @Router /api/v1/profile [put]
func (h *ProfileHandler) UpdateProfile(ctx *fasthttp.RequestCtx) {
	h.withUser(ctx, func(stdCtx context.Context, userID string) {
		var req transport.ProfileUpdateRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			h.invalidPayload(ctx)
			return
		}
		updated, err := h.uc.UpdateProfile(stdCtx, userID, profileUC.Update{
			DisplayName: req.DisplayName,
			Metadata:    req.Metadata,
		})
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusOK, updated)
	})
}

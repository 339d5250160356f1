package voiceHandler

import (
	"context"
	"time"

	"VoiceAssistant/internal/api/voice"
	contextPkg "VoiceAssistant/pkg/context"
	"VoiceAssistant/pkg/handlerUtil"
	jwtPkg "VoiceAssistant/pkg/jwt"
	"VoiceAssistant/pkg/log"

	"github.com/gofiber/fiber/v2"
)

func (h *VoiceHandler) Classify(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 30*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req voice.ClassifyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	res, err := h.voiceService.Classify(c, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "classify")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, res)
	}
}

func (h *VoiceHandler) GetHistory(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 30*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Fetching voice history")

	userData, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	limit := ctx.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := ctx.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	interactions, total, err := h.voiceService.GetHistory(c, userData.ID, limit, offset)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_history")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, voice.HistoryResponse{
			Interactions: interactions,
			Total:        total,
			Limit:        limit,
			Offset:       offset,
		})
	}
}

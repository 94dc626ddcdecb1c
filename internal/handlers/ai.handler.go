package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-campaigns/internal/services"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
)

type AIService interface {
	SuggestRules(ctx context.Context, description string) (*services.RuleSuggestion, error)
	GenerateMessage(ctx context.Context, goal string) (*services.GeneratedMessage, error)
}

type AIHandler struct {
	svc AIService
}

func RegisterAIRoutes(e *router.Group, h *AIHandler, protect xhttp.MiddlewareFunc) {
	e.POST("/ai/convert-rules", protect(h.ConvertRules))
	e.POST("/ai/generate-message", protect(h.GenerateMessage))
}

func NewAIHandler(svc AIService) *AIHandler {
	return &AIHandler{
		svc: svc,
	}
}

type convertRulesRequest struct {
	Description string `json:"description"`
}

type generateMessageRequest struct {
	Goal string `json:"goal"`
}

func (h *AIHandler) ConvertRules(ctx *xhttp.RequestCtx) {
	var req convertRulesRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	out, err := h.svc.SuggestRules(requestContext(ctx), req.Description)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, out)
}

func (h *AIHandler) GenerateMessage(ctx *xhttp.RequestCtx) {
	var req generateMessageRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	out, err := h.svc.GenerateMessage(requestContext(ctx), req.Goal)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, out)
}

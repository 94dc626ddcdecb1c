package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
)

type CampaignService interface {
	Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context, p model.ListParams) ([]*model.Campaign, int64, error)
	Preview(ctx context.Context, tree rules.Tree) (int, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, req model.CampaignUpdateRequest) (*model.Campaign, error)
	Activate(ctx context.Context, id uuid.UUID) (*model.ActivationResult, error)
	Complete(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	Stats(ctx context.Context, id uuid.UUID) (model.CampaignStats, error)
	Deliveries(ctx context.Context, id uuid.UUID, p model.ListParams) ([]*model.DeliveryRecord, int64, error)
}

type CampaignHandler struct {
	svc CampaignService
}

func RegisterCampaignRoutes(e *router.Group, h *CampaignHandler, protect xhttp.MiddlewareFunc) {
	e.POST("/campaigns", protect(h.Create))
	e.GET("/campaigns", protect(h.List))
	e.POST("/campaigns/preview", protect(h.Preview))
	e.GET("/campaigns/{id}", protect(h.Get))
	e.PUT("/campaigns/{id}", protect(h.Update))
	e.POST("/campaigns/{id}/activate", protect(h.Activate))
	e.POST("/campaigns/{id}/complete", protect(h.Complete))
	e.POST("/campaigns/{id}/cancel", protect(h.Cancel))
	e.GET("/campaigns/{id}/stats", protect(h.Stats))
	e.GET("/campaigns/{id}/deliveries", protect(h.Deliveries))
}

func NewCampaignHandler(svc CampaignService) *CampaignHandler {
	return &CampaignHandler{
		svc: svc,
	}
}

// previewRequest accepts the tree either bare or under "rules".
type previewRequest struct {
	Rules *rules.Tree `json:"rules"`
	rules.Tree
}

type previewResponse struct {
	Count int `json:"count"`
}

type activationResponse struct {
	Campaign *model.Campaign         `json:"campaign"`
	Result   *model.ActivationResult `json:"result"`
}

func (h *CampaignHandler) Create(ctx *xhttp.RequestCtx) {
	var req model.CampaignCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	c, err := h.svc.Create(requestContext(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, c)
}

func (h *CampaignHandler) List(ctx *xhttp.RequestCtx) {
	p := listParams(ctx)
	items, total, err := h.svc.List(requestContext(ctx), p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newList(items, total, p))
}

func (h *CampaignHandler) Preview(ctx *xhttp.RequestCtx) {
	var req previewRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	tree := req.Tree
	if req.Rules != nil {
		tree = *req.Rules
	}
	if err := tree.Validate(); err != nil {
		writeServiceError(ctx, err)
		return
	}
	n, err := h.svc.Preview(requestContext(ctx), tree)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, previewResponse{Count: n})
}

func (h *CampaignHandler) Get(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	c, err := h.svc.Get(requestContext(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *CampaignHandler) Update(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	var req model.CampaignUpdateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	c, err := h.svc.UpdateDraft(requestContext(ctx), id, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

// Activate answers 200 even when some recipients failed; the failures are
// listed in the result.
func (h *CampaignHandler) Activate(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	rctx := requestContext(ctx)
	result, err := h.svc.Activate(rctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	c, err := h.svc.Get(rctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, activationResponse{Campaign: c, Result: result})
}

func (h *CampaignHandler) Complete(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	c, err := h.svc.Complete(requestContext(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *CampaignHandler) Cancel(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	c, err := h.svc.Cancel(requestContext(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *CampaignHandler) Stats(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	stats, err := h.svc.Stats(requestContext(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}

func (h *CampaignHandler) Deliveries(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	p := listParams(ctx)
	records, total, err := h.svc.Deliveries(requestContext(ctx), id, p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newList(records, total, p))
}

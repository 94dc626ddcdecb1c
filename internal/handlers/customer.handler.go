package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
)

type CustomerService interface {
	Create(ctx context.Context, req model.CustomerCreateRequest) (*model.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	List(ctx context.Context, p model.ListParams) ([]*model.Customer, int64, error)
	Update(ctx context.Context, id uuid.UUID, req model.CustomerUpdateRequest) (*model.Customer, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type CustomerHandler struct {
	svc CustomerService
}

func RegisterCustomerRoutes(e *router.Group, h *CustomerHandler, protect xhttp.MiddlewareFunc) {
	e.POST("/customers", protect(h.Create))
	e.GET("/customers", protect(h.List))
	e.GET("/customers/{id}", protect(h.Get))
	e.PUT("/customers/{id}", protect(h.Update))
	e.DELETE("/customers/{id}", protect(h.Delete))
}

func NewCustomerHandler(svc CustomerService) *CustomerHandler {
	return &CustomerHandler{
		svc: svc,
	}
}

func (h *CustomerHandler) Create(ctx *xhttp.RequestCtx) {
	var req model.CustomerCreateRequest
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

func (h *CustomerHandler) List(ctx *xhttp.RequestCtx) {
	p := listParams(ctx)
	items, total, err := h.svc.List(requestContext(ctx), p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newList(items, total, p))
}

func (h *CustomerHandler) Get(ctx *xhttp.RequestCtx) {
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

func (h *CustomerHandler) Update(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	var req model.CustomerUpdateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	c, err := h.svc.Update(requestContext(ctx), id, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *CustomerHandler) Delete(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(requestContext(ctx), id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

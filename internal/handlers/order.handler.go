package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
)

type OrderService interface {
	Create(ctx context.Context, req model.OrderCreateRequest) (*model.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context, p model.ListParams) ([]*model.Order, int64, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, p model.ListParams) ([]*model.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error)
}

type OrderHandler struct {
	svc OrderService
}

func RegisterOrderRoutes(e *router.Group, h *OrderHandler, protect xhttp.MiddlewareFunc) {
	e.POST("/orders", protect(h.Create))
	e.GET("/orders", protect(h.List))
	e.GET("/orders/customer/{customerId}", protect(h.ListByCustomer))
	e.GET("/orders/{id}", protect(h.Get))
	e.PATCH("/orders/{id}/status", protect(h.UpdateStatus))
}

func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{
		svc: svc,
	}
}

type updateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

func (h *OrderHandler) Create(ctx *xhttp.RequestCtx) {
	var req model.OrderCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	o, err := h.svc.Create(requestContext(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, o)
}

func (h *OrderHandler) List(ctx *xhttp.RequestCtx) {
	p := listParams(ctx)
	items, total, err := h.svc.List(requestContext(ctx), p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newList(items, total, p))
}

func (h *OrderHandler) ListByCustomer(ctx *xhttp.RequestCtx) {
	customerID, ok := pathUUID(ctx, "customerId")
	if !ok {
		return
	}
	p := listParams(ctx)
	items, total, err := h.svc.ListByCustomer(requestContext(ctx), customerID, p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newList(items, total, p))
}

func (h *OrderHandler) Get(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	o, err := h.svc.Get(requestContext(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, o)
}

func (h *OrderHandler) UpdateStatus(ctx *xhttp.RequestCtx) {
	id, ok := pathUUID(ctx, "id")
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	o, err := h.svc.UpdateStatus(requestContext(ctx), id, req.Status)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, o)
}

package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-campaigns/internal/model"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
)

type ReceiptService interface {
	ProcessReceipt(ctx context.Context, r model.Receipt) (model.ReceiptOutcome, error)
}

// ReceiptHandler is the vendor callback. It sits outside authentication.
type ReceiptHandler struct {
	svc ReceiptService
}

func RegisterReceiptRoutes(e *router.Group, h *ReceiptHandler) {
	e.POST("/receipt", h.Receive)
}

func NewReceiptHandler(svc ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{
		svc: svc,
	}
}

type receiptResponse struct {
	Outcome model.ReceiptOutcome `json:"outcome"`
}

func (h *ReceiptHandler) Receive(ctx *xhttp.RequestCtx) {
	var req model.Receipt
	if err := readJSON(ctx, &req); err != nil {
		writeBadJSON(ctx, err)
		return
	}
	outcome, err := h.svc.ProcessReceipt(requestContext(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, receiptResponse{Outcome: outcome})
}

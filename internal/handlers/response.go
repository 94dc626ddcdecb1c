package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/auth"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
)

const principalValue = "principal"

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Current string `json:"current,omitempty"`
}

type listResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}

// writeBadJSON answers a body that did not decode. Rule trees reject unknown
// fields and operators while decoding, so those still come out as 422.
func writeBadJSON(ctx *xhttp.RequestCtx, err error) {
	if errors.Is(err, rules.ErrInvalidRule) {
		writeError(ctx, xhttp.StatusUnprocessableEntity, err.Error())
		return
	}
	writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
}

// writeServiceError maps error kinds to status codes. Anything unrecognised
// is logged and hidden behind a 500.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	var (
		ve *model.ValidationError
		se *model.StateError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(ctx, xhttp.StatusBadRequest, errorResponse{Error: err.Error(), Field: ve.Field})
	case errors.Is(err, rules.ErrInvalidRule):
		writeError(ctx, xhttp.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &se):
		writeJSON(ctx, xhttp.StatusConflict, errorResponse{Error: err.Error(), Current: se.Current})
	case errors.Is(err, model.ErrNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrDuplicateEmail), errors.Is(err, model.ErrCustomerReferenced):
		writeError(ctx, xhttp.StatusConflict, err.Error())
	case errors.Is(err, model.ErrAIUnavailable):
		logger.Warn("ai collaborator failed", "error", err, "path", string(ctx.Path()))
		writeError(ctx, xhttp.StatusServiceUnavailable, "ai service unavailable")
	case errors.Is(err, model.ErrInvalidReceipt), errors.Is(err, model.ErrValidation):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrTokenExpired):
		writeError(ctx, xhttp.StatusUnauthorized, err.Error())
	default:
		logger.Error("request failed", "error", err, "path", string(ctx.Path()), "method", string(ctx.Method()))
		writeError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}

// requestContext is the context services see. It carries the principal the
// auth middleware stored on the request.
func requestContext(ctx *xhttp.RequestCtx) context.Context {
	var c context.Context = ctx
	if p, ok := ctx.UserValue(principalValue).(auth.Principal); ok {
		c = auth.WithPrincipal(c, p)
	}
	return c
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func listParams(ctx *xhttp.RequestCtx) model.ListParams {
	var p model.ListParams
	if n, err := strconv.Atoi(query(ctx, "limit")); err == nil {
		p.Limit = n
	}
	if n, err := strconv.Atoi(query(ctx, "offset")); err == nil {
		p.Offset = n
	}
	return p.Normalized()
}

func pathUUID(ctx *xhttp.RequestCtx, name string) (uuid.UUID, bool) {
	raw, _ := ctx.UserValue(name).(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(ctx, xhttp.StatusBadRequest, errorResponse{Error: "invalid " + name, Field: name})
		return uuid.Nil, false
	}
	return id, true
}

func newList[T any](items []T, total int64, p model.ListParams) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}

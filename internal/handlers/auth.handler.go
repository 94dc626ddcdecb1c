package handlers

import (
	"errors"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-campaigns/internal/auth"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
)

type TokenVerifier interface {
	Verify(raw string) (auth.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal for the handler.
func RequireAuth(v TokenVerifier) xhttp.MiddlewareFunc {
	return func(next xhttp.RequestHandler) xhttp.RequestHandler {
		return func(ctx *xhttp.RequestCtx) {
			raw, err := auth.BearerToken(string(ctx.Request.Header.Peek("Authorization")))
			if err != nil {
				writeError(ctx, xhttp.StatusUnauthorized, "missing bearer token")
				return
			}
			p, err := v.Verify(raw)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token expired"
				}
				writeError(ctx, xhttp.StatusUnauthorized, msg)
				return
			}
			ctx.SetUserValue(principalValue, p)
			next(ctx)
		}
	}
}

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

func RegisterAuthRoutes(e *router.Group, h *AuthHandler, protect xhttp.MiddlewareFunc) {
	e.GET("/auth/me", protect(h.Me))
}

func (h *AuthHandler) Me(ctx *xhttp.RequestCtx) {
	p, ok := auth.FromContext(requestContext(ctx))
	if !ok {
		writeError(ctx, xhttp.StatusUnauthorized, "not signed in")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

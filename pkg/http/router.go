package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router that answers unknown paths and
// methods with a JSON 404 body and keeps matched route paths for logging.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = NotFoundHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	r.PanicHandler = func(ctx *RequestCtx, v interface{}) {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(StatusInternalServerError)
		ctx.SetBodyString(`{"error":"internal server error"}`)
	}
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(StatusNotFound)
	ctx.SetBodyString(`{"error":"route not found"}`)
}

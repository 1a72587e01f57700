package router

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// Router dispatches fasthttp requests by method and path pattern. Patterns
// use {name} segments; matched values are stored as request user values.
type Router struct {
	routes     map[string][]route
	notFound   fasthttp.RequestHandler
	middleware []func(fasthttp.RequestHandler) fasthttp.RequestHandler
}

type route struct {
	pattern  string
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	name    string
	isParam bool
}

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Use wraps every handler with mw. Middleware registered first runs outermost.
func (r *Router) Use(mw func(fasthttp.RequestHandler) fasthttp.RequestHandler) {
	r.middleware = append(r.middleware, mw)
}

// Handler returns the composed request handler.
func (r *Router) Handler() fasthttp.RequestHandler {
	h := r.dispatch
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h
}

func (r *Router) dispatch(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	parts := split(string(ctx.Path()))
	if method == fasthttp.MethodHead {
		method = fasthttp.MethodGet
	}
	for _, rt := range r.routes[method] {
		if values, ok := match(parts, rt.segments); ok {
			for k, v := range values {
				ctx.SetUserValue(k, v)
			}
			rt.handler(ctx)
			return
		}
	}
	// path exists under another method
	for m, list := range r.routes {
		if m == method {
			continue
		}
		for _, rt := range list {
			if _, ok := match(parts, rt.segments); ok {
				WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
				return
			}
		}
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
}

func (r *Router) GET(path string, h fasthttp.RequestHandler)    { r.add(fasthttp.MethodGet, path, h) }
func (r *Router) POST(path string, h fasthttp.RequestHandler)   { r.add(fasthttp.MethodPost, path, h) }
func (r *Router) PUT(path string, h fasthttp.RequestHandler)    { r.add(fasthttp.MethodPut, path, h) }
func (r *Router) DELETE(path string, h fasthttp.RequestHandler) { r.add(fasthttp.MethodDelete, path, h) }

// NotFound registers a handler for unmatched routes.
func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

// Routes lists registered "METHOD pattern" pairs.
func (r *Router) Routes() []string {
	var out []string
	for m, list := range r.routes {
		for _, rt := range list {
			out = append(out, m+" "+rt.pattern)
		}
	}
	return out
}

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	parts := split(path)
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if len(part) > 2 && part[0] == '{' && part[len(part)-1] == '}' {
			segs[i] = segment{name: part[1 : len(part)-1], isParam: true}
		} else {
			segs[i] = segment{name: part}
		}
	}
	r.routes[method] = append(r.routes[method], route{pattern: path, segments: segs, handler: h})
}

// split turns "/v1/chats/x/" into [v1 chats x]; "/" yields no parts.
func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func match(parts []string, segs []segment) (map[string]string, bool) {
	if len(parts) != len(segs) {
		return nil, false
	}
	values := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			if parts[i] == "" {
				return nil, false
			}
			values[seg.name] = parts[i]
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}

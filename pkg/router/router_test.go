package router

import (
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"
)

func serve(h fasthttp.RequestHandler, method, path string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	h(&ctx)
	return &ctx
}

func TestDispatch(t *testing.T) {
	r := New()
	r.GET("/v1/chats", func(ctx *fasthttp.RequestCtx) { WriteJSONOk(ctx, map[string]any{"route": "list"}) })
	r.GET("/v1/chats/{chatId}/messages", func(ctx *fasthttp.RequestCtx) {
		WriteJSONOk(ctx, map[string]any{"chat": PathParam(ctx, "chatId")})
	})
	r.DELETE("/v1/chats/{chatId}", func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusNoContent) })
	h := r.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		status int
		key    string
		want   string
	}{
		{"static", "GET", "/v1/chats", 200, "route", "list"},
		{"trailing slash", "GET", "/v1/chats/", 200, "route", "list"},
		{"param", "GET", "/v1/chats/direct_a_b/messages", 200, "chat", "direct_a_b"},
		{"head as get", "HEAD", "/v1/chats", 200, "", ""},
		{"delete", "DELETE", "/v1/chats/x", 204, "", ""},
		{"wrong method", "POST", "/v1/chats/x", 405, "error", "method not allowed"},
		{"unknown", "GET", "/v2/nothing", 404, "error", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := serve(h, tt.method, tt.path)
			if got := ctx.Response.StatusCode(); got != tt.status {
				t.Fatalf("status = %d, want %d", got, tt.status)
			}
			if tt.key == "" || tt.method == "HEAD" {
				return
			}
			var body map[string]string
			if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
				t.Fatalf("decode %q: %v", ctx.Response.Body(), err)
			}
			if body[tt.key] != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, body[tt.key], tt.want)
			}
		})
	}
}

func TestMiddlewareOrder(t *testing.T) {
	r := New()
	var order []string
	mw := func(name string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	r.Use(mw("outer"))
	r.Use(mw("inner"))
	r.GET("/", func(ctx *fasthttp.RequestCtx) { order = append(order, "handler") })
	serve(r.Handler(), "GET", "/")
	if len(order) != 3 || order[0] != "outer" || order[1] != "inner" || order[2] != "handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestDecodeJSON(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetBodyString(`{"text":"hi"}`)
	var in struct{ Text string }
	if err := DecodeJSON(&ctx, &in); err != nil || in.Text != "hi" {
		t.Fatalf("DecodeJSON: %+v %v", in, err)
	}
	ctx.Request.SetBodyString(`{`)
	if err := DecodeJSON(&ctx, &in); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

package router

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes data as a JSON response with status.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, data any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	_ = json.NewEncoder(ctx).Encode(data)
}

// WriteJSONError writes {"error": message} with status.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSON(ctx, status, map[string]string{"error": message})
}

// WriteJSONOk writes data with status 200.
func WriteJSONOk(ctx *fasthttp.RequestCtx, data map[string]any) {
	WriteJSON(ctx, fasthttp.StatusOK, data)
}

// DecodeJSON parses the request body into v. An empty body leaves v untouched.
func DecodeJSON(ctx *fasthttp.RequestCtx, v any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

// PathParam returns the value captured for {param}, or "".
func PathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v := ctx.UserValue(param); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// ValidatePathParam writes a 400 and returns false when {param} is missing.
func ValidatePathParam(ctx *fasthttp.RequestCtx, param string) (string, bool) {
	v := PathParam(ctx, param)
	if v == "" {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, param+" missing")
		return "", false
	}
	return v, true
}

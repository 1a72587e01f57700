package logger

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
)

// mask keeps the first and last rune of v.
func mask(v string) string {
	if v == "" {
		return ""
	}
	if utf8.RuneCountInString(v) <= 2 {
		return "<redacted>"
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return string(first) + "*****" + string(last)
}

var secretHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
}

// RequestHeaders renders the request headers with credentials masked.
func RequestHeaders(ctx *fasthttp.RequestCtx) string {
	var parts []string
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		val := string(v)
		if _, secret := secretHeaders[strings.ToLower(key)]; secret {
			val = mask(val)
		}
		parts = append(parts, key+"="+val)
	})
	return strings.Join(parts, "; ")
}

// LogRequestFast logs one served command API request. Request bodies are
// never logged; they may carry passwords or attachments.
func LogRequestFast(ctx *fasthttp.RequestCtx, elapsed time.Duration) {
	if Log == nil {
		return
	}
	Debug("command_request",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"status", ctx.Response.StatusCode(),
		"elapsed", elapsed,
		"request_bytes", len(ctx.Request.Body()),
		"headers", RequestHeaders(ctx),
	)
}

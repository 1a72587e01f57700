package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// daemon is a small JSON client for the command API.
type daemon struct {
	base string
	hc   *fasthttp.Client
}

func newDaemon(addr string) *daemon {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &daemon{
		base: strings.TrimRight(base, "/"),
		hc:   &fasthttp.Client{Name: "chatctl"},
	}
}

func (d *daemon) call(method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(d.base + path)
	req.Header.SetMethod(method)
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	if err := d.hc.DoTimeout(req, resp, time.Minute); err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", d.base, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (status %d)", e.Error, code)
		}
		return fmt.Errorf("status %d", code)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

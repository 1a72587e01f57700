package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"mawneychat/pkg/config"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/telemetry"
)

// Options configure a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	TokenSecret string
	TokenTTL    time.Duration
	RPS         float64
	Burst       int
}

// OptionsFromConfig maps the remote config section.
func OptionsFromConfig(rc config.RemoteConfig) Options {
	return Options{
		BaseURL:     rc.BaseURL,
		Timeout:     rc.Timeout.Duration(),
		TokenSecret: rc.TokenSecret,
		TokenTTL:    rc.TokenTTL.Duration(),
		RPS:         rc.RateLimit.RPS,
		Burst:       rc.RateLimit.Burst,
	}
}

// Client talks to the remote chat API.
type Client struct {
	base    string
	timeout time.Duration
	hc      *fasthttp.Client
	limiter *rate.Limiter
	signer  *Signer
	account atomic.Value
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := opts.Burst
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		if burst <= 0 {
			burst = 1
		}
	}
	c := &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		timeout: timeout,
		hc: &fasthttp.Client{
			Name:                "mawneychat",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
	if opts.TokenSecret != "" {
		c.signer = NewSigner(opts.TokenSecret, opts.TokenTTL)
	}
	return c
}

// SetAccount sets the email used as the bearer token subject.
func (c *Client) SetAccount(email string) { c.account.Store(email) }

// Account returns the email set by SetAccount.
func (c *Client) Account() string {
	s, _ := c.account.Load().(string)
	return s
}

func (c *Client) BaseURL() string { return c.base }

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, in, out any) (err error) {
	if c.base == "" {
		return ErrNotConfigured
	}
	start := time.Now()
	defer func() { telemetry.ObserveRemote(endpoint, start, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.base + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	if account := c.Account(); c.signer != nil && account != "" {
		tok, err := c.signer.Token(account)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Debug("remote_request_failed", "endpoint", endpoint, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	var env envelope
	if len(body) > 0 {
		_ = json.Unmarshal(body, &env)
	}
	if status < 200 || status >= 300 {
		return &APIError{Status: status, Message: firstNonEmpty(env.Error, env.Message)}
	}
	if env.Success != nil && !*env.Success {
		return &APIError{Status: status, Message: firstNonEmpty(env.Error, env.Message, "request unsuccessful")}
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

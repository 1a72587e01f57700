package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"mawneychat/pkg/state/logger"
)

// Notification is one local notification scheduled for a chat.
type Notification struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chatId"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	SenderID string    `json:"senderId,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier is the platform integration that actually shows notifications.
type Notifier interface {
	Schedule(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, chatID string, ids []string) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

func (LogNotifier) Schedule(_ context.Context, n Notification) error {
	logger.Info("notification_scheduled", "id", n.ID, "chat_id", n.ChatID, "title", n.Title, "body", n.Body)
	return nil
}

func (LogNotifier) Cancel(_ context.Context, chatID string, ids []string) error {
	logger.Info("notification_cancelled", "chat_id", chatID, "count", len(ids))
	return nil
}

// WebhookNotifier forwards notifications as JSON to a desktop bridge.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
	hc      *fasthttp.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:     url,
		timeout: timeout,
		hc:      &fasthttp.Client{Name: "mawneychat-notify"},
	}
}

type webhookPayload struct {
	Action       string        `json:"action"`
	Notification *Notification `json:"notification,omitempty"`
	ChatID       string        `json:"chatId,omitempty"`
	IDs          []string      `json:"ids,omitempty"`
}

func (w *WebhookNotifier) Schedule(ctx context.Context, n Notification) error {
	return w.post(ctx, webhookPayload{Action: "schedule", Notification: &n, ChatID: n.ChatID})
}

func (w *WebhookNotifier) Cancel(ctx context.Context, chatID string, ids []string) error {
	return w.post(ctx, webhookPayload{Action: "cancel", ChatID: chatID, IDs: ids})
}

func (w *WebhookNotifier) post(ctx context.Context, p webhookPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(w.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.hc.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("webhook %s: %w", p.Action, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return fmt.Errorf("webhook %s: status %d", p.Action, code)
	}
	return nil
}

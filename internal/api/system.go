package api

import (
	"github.com/valyala/fasthttp"

	"mawneychat/pkg/chat"
	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/router"
)

// Poll runs one check immediately and returns its polling_update.
func (h *Handlers) Poll(ctx *fasthttp.RequestCtx) {
	if h.poller == nil {
		unavailable(ctx, "polling")
		return
	}
	c, cancel := reqContext()
	defer cancel()
	router.WriteJSONOk(ctx, map[string]any{"update": h.poller.CheckForNewMessages(c)})
}

// Outbox lists queued and parked remote writes.
func (h *Handlers) Outbox(ctx *fasthttp.RequestCtx) {
	if h.outbox == nil {
		unavailable(ctx, "outbox")
		return
	}
	pending, err := h.outbox.Pending()
	if err != nil {
		writeError(ctx, err)
		return
	}
	failed, err := h.outbox.Failed()
	if err != nil {
		writeError(ctx, err)
		return
	}
	if pending == nil {
		pending = []outbox.Op{}
	}
	if failed == nil {
		failed = []outbox.Op{}
	}
	router.WriteJSONOk(ctx, map[string]any{"pending": pending, "failed": failed})
}

func (h *Handlers) AssistantSessions(ctx *fasthttp.RequestCtx) {
	if h.assistant == nil {
		unavailable(ctx, "assistant")
		return
	}
	u, ok := h.chats.CurrentUser()
	if !ok {
		writeError(ctx, chat.ErrNoCurrentUser)
		return
	}
	c, cancel := reqContext()
	defer cancel()
	list, stale, err := h.assistant.Sessions(c, u.ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if list == nil {
		list = []models.AssistantSession{}
	}
	router.WriteJSONOk(ctx, map[string]any{"sessions": list, "stale": stale})
}

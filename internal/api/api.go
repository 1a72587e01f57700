// Package api is the daemon's local command API: a thin fasthttp layer over
// the chat state store, the poller and the user directory.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"mawneychat/pkg/assistant"
	"mawneychat/pkg/chat"
	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/polling"
	"mawneychat/pkg/remote"
	"mawneychat/pkg/router"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/users"
)

// Authenticator signs a user in on this device.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (models.User, error)
}

const requestTimeout = 30 * time.Second

type Handlers struct {
	chats     *chat.Store
	poller    *polling.Service
	users     *users.Directory
	assistant *assistant.Service
	outbox    *outbox.Outbox
	auth      Authenticator
}

// New builds the handler set. poller, asst, ob and auth may be nil; their
// routes then answer 503.
func New(chats *chat.Store, poller *polling.Service, dir *users.Directory, asst *assistant.Service, ob *outbox.Outbox, auth Authenticator) *Handlers {
	return &Handlers{chats: chats, poller: poller, users: dir, assistant: asst, outbox: ob, auth: auth}
}

// Register wires every /v1 route onto r.
func (h *Handlers) Register(r *router.Router) {
	r.POST("/v1/login", h.Login)
	r.GET("/v1/me", h.Me)
	r.GET("/v1/users", h.ListUsers)

	// chats
	r.GET("/v1/chats", h.ListChats)
	r.POST("/v1/chats/direct", h.CreateDirectChat)
	r.POST("/v1/chats/group", h.CreateGroupChat)
	r.DELETE("/v1/chats/{chatId}", h.DeleteChat)
	r.POST("/v1/chats/{chatId}/leave", h.LeaveChat)
	r.POST("/v1/chats/{chatId}/read", h.MarkAsRead)

	// messages
	r.GET("/v1/chats/{chatId}/messages", h.ListMessages)
	r.POST("/v1/chats/{chatId}/messages", h.SendMessage)

	// polling
	r.GET("/v1/unread", h.Unread)
	r.POST("/v1/poll", h.Poll)

	r.GET("/v1/outbox", h.Outbox)
	r.GET("/v1/assistant/sessions", h.AssistantSessions)
}

// reqContext bounds a handler's blocking work.
func reqContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// writeError maps domain errors onto status codes.
func writeError(ctx *fasthttp.RequestCtx, err error) {
	var apiErr *remote.APIError
	switch {
	case chat.IsValidation(err),
		errors.Is(err, assistant.ErrEmptySessionName),
		errors.Is(err, assistant.ErrEmptyExchange):
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrChatNotFound):
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrNoCurrentUser), errors.Is(err, users.ErrInvalidCredentials):
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, err.Error())
	case errors.Is(err, remote.ErrNotConfigured):
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, err.Error())
	case errors.As(err, &apiErr):
		router.WriteJSONError(ctx, fasthttp.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		router.WriteJSONError(ctx, fasthttp.StatusGatewayTimeout, "request timed out")
	default:
		logger.Error("command_failed", "path", string(ctx.Path()), "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "internal error")
	}
}

func unavailable(ctx *fasthttp.RequestCtx, what string) {
	router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, what+" not enabled")
}

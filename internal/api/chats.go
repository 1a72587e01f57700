package api

import (
	"strconv"

	"github.com/valyala/fasthttp"

	"mawneychat/pkg/chat"
	"mawneychat/pkg/models"
	"mawneychat/pkg/router"
)

func (h *Handlers) Login(ctx *fasthttp.RequestCtx) {
	if h.auth == nil {
		unavailable(ctx, "login")
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := router.DecodeJSON(ctx, &in); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	c, cancel := reqContext()
	defer cancel()
	u, err := h.auth.SignIn(c, in.Email, in.Password)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"user": h.userView(u)})
}

func (h *Handlers) Me(ctx *fasthttp.RequestCtx) {
	u, ok := h.chats.CurrentUser()
	if !ok {
		writeError(ctx, chat.ErrNoCurrentUser)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"user": h.userView(u)})
}

type userView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

func (h *Handlers) userView(u models.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: h.users.Avatar(u.ID)}
}

// ListUsers returns everyone except the signed-in user.
func (h *Handlers) ListUsers(ctx *fasthttp.RequestCtx) {
	var list []models.User
	if u, ok := h.chats.CurrentUser(); ok {
		list = h.users.Others(u.ID)
	} else {
		list = h.users.All()
	}
	out := make([]userView, 0, len(list))
	for _, u := range list {
		out = append(out, h.userView(u))
	}
	router.WriteJSONOk(ctx, map[string]any{"users": out})
}

func (h *Handlers) ListChats(ctx *fasthttp.RequestCtx) {
	if _, ok := h.chats.CurrentUser(); !ok {
		writeError(ctx, chat.ErrNoCurrentUser)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"chats": h.chats.Chats()})
}

func (h *Handlers) CreateDirectChat(ctx *fasthttp.RequestCtx) {
	var in struct {
		UserID string `json:"userId"`
	}
	if err := router.DecodeJSON(ctx, &in); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	c, cancel := reqContext()
	defer cancel()
	out, err := h.chats.CreateDirectChat(c, in.UserID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"chat": out})
}

func (h *Handlers) CreateGroupChat(ctx *fasthttp.RequestCtx) {
	var in struct {
		Name         string   `json:"name"`
		Participants []string `json:"participants"`
	}
	if err := router.DecodeJSON(ctx, &in); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	c, cancel := reqContext()
	defer cancel()
	out, err := h.chats.CreateGroupChat(c, in.Name, in.Participants)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusCreated, map[string]any{"chat": out})
}

func (h *Handlers) LeaveChat(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "chatId")
	if !ok {
		return
	}
	c, cancel := reqContext()
	defer cancel()
	left, err := h.chats.LeaveChat(c, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"left": left})
}

func (h *Handlers) DeleteChat(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "chatId")
	if !ok {
		return
	}
	c, cancel := reqContext()
	defer cancel()
	deleted, err := h.chats.DeleteChat(c, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"deleted": deleted})
}

func (h *Handlers) MarkAsRead(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "chatId")
	if !ok {
		return
	}
	c, cancel := reqContext()
	defer cancel()
	n, err := h.chats.MarkAsRead(c, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"marked": n, "unreadCount": h.chats.UnreadCount(id)})
}

// ListMessages returns a chat's messages oldest first; ?limit=N keeps the
// newest N.
func (h *Handlers) ListMessages(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "chatId")
	if !ok {
		return
	}
	if _, found := h.chats.Chat(id); !found {
		writeError(ctx, chat.ErrChatNotFound)
		return
	}
	msgs := h.chats.Messages(id)
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid limit")
			return
		}
		if limit < len(msgs) {
			msgs = msgs[len(msgs)-limit:]
		}
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	router.WriteJSONOk(ctx, map[string]any{"messages": msgs})
}

func (h *Handlers) SendMessage(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "chatId")
	if !ok {
		return
	}
	var in struct {
		Text       string             `json:"text"`
		Type       models.MessageType `json:"type"`
		Attachment *string            `json:"attachment"`
	}
	if err := router.DecodeJSON(ctx, &in); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	c, cancel := reqContext()
	defer cancel()
	msg, err := h.chats.SendAttachment(c, id, in.Text, in.Type, in.Attachment)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusCreated, map[string]any{"message": msg})
}

func (h *Handlers) Unread(ctx *fasthttp.RequestCtx) {
	if _, ok := h.chats.CurrentUser(); !ok {
		writeError(ctx, chat.ErrNoCurrentUser)
		return
	}
	per := map[string]int{}
	total := 0
	for _, c := range h.chats.Chats() {
		if c.UnreadCount > 0 {
			per[c.ID] = c.UnreadCount
		}
		total += c.UnreadCount
	}
	router.WriteJSONOk(ctx, map[string]any{"totalUnreadCount": total, "chats": per})
}

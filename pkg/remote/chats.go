package remote

import (
	"context"
	"net/url"

	"mawneychat/pkg/models"
)

type chatsResponse struct {
	Chats []models.Chat `json:"chats"`
}

type chatsRequest struct {
	Email string        `json:"email"`
	Chats []models.Chat `json:"chats"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type messagesRequest struct {
	ChatID   string           `json:"chat_id"`
	Messages []models.Message `json:"messages"`
}

// FetchChats returns the server's chat list for email.
func (c *Client) FetchChats(ctx context.Context, email string) ([]models.Chat, error) {
	var out chatsResponse
	q := url.Values{"email": {email}}
	if err := c.do(ctx, "user_chats_get", "GET", "/api/user-chats", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// PushChats replaces the server's chat list for email.
func (c *Client) PushChats(ctx context.Context, email string, chats []models.Chat) error {
	if chats == nil {
		chats = []models.Chat{}
	}
	return c.do(ctx, "user_chats_post", "POST", "/api/user-chats", nil, chatsRequest{Email: email, Chats: chats}, nil)
}

// FetchMessages returns the server's messages for chatID.
func (c *Client) FetchMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var out messagesResponse
	q := url.Values{"chat_id": {chatID}}
	if err := c.do(ctx, "user_messages_get", "GET", "/api/user-messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PushMessages replaces the server's messages for chatID.
func (c *Client) PushMessages(ctx context.Context, chatID string, msgs []models.Message) error {
	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.do(ctx, "user_messages_post", "POST", "/api/user-messages", nil, messagesRequest{ChatID: chatID, Messages: msgs}, nil)
}

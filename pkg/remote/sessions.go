package remote

import (
	"context"
	"net/url"

	"mawneychat/pkg/models"
)

// ListSessions returns the assistant sessions held by the server.
func (c *Client) ListSessions(ctx context.Context) ([]models.AssistantSession, error) {
	var out struct {
		Sessions []models.AssistantSession `json:"sessions"`
	}
	if err := c.do(ctx, "sessions_get", "GET", "/api/chat/sessions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// CreateSession creates a named assistant session and returns its id.
func (c *Client) CreateSession(ctx context.Context, name string) (string, error) {
	var out struct {
		ChatID string `json:"chat_id"`
	}
	in := map[string]string{"name": name}
	if err := c.do(ctx, "sessions_post", "POST", "/api/chat/sessions", nil, in, &out); err != nil {
		return "", err
	}
	return out.ChatID, nil
}

func (c *Client) Conversations(ctx context.Context, sessionID string) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	path := "/api/chat/sessions/" + url.PathEscape(sessionID) + "/conversations"
	if err := c.do(ctx, "conversations_get", "GET", path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) AppendConversation(ctx context.Context, sessionID, userMessage, aiResponse string) error {
	in := map[string]string{"user_message": userMessage, "ai_response": aiResponse}
	path := "/api/chat/sessions/" + url.PathEscape(sessionID) + "/conversations"
	return c.do(ctx, "conversations_post", "POST", path, nil, in, nil)
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "sessions_delete", "DELETE", "/api/chat/sessions/"+url.PathEscape(sessionID), nil, nil, nil)
}

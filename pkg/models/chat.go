package models

import (
	"slices"
	"time"
)

type ChatType string

const (
	ChatDirect      ChatType = "direct"
	ChatGroup       ChatType = "group"
	ChatAIAssistant ChatType = "ai_assistant"
)

// LastMessage is the preview shown in a chat list.
type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is a conversation between participants.
type Chat struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         ChatType     `json:"type"`
	Participants []string     `json:"participants"`
	CreatedBy    string       `json:"createdBy"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastMessage  *LastMessage `json:"lastMessage"`
	UnreadCount  int          `json:"unreadCount"`
}

// GetID satisfies the repository merge constraint.
func (c Chat) GetID() string { return c.ID }

// EffectiveTime orders chats in a list: last message time, else creation time.
func (c Chat) EffectiveTime() time.Time {
	if c.LastMessage != nil && !c.LastMessage.Timestamp.IsZero() {
		return c.LastMessage.Timestamp
	}
	return c.CreatedAt
}

// HasParticipant reports whether userID takes part in the chat.
func (c Chat) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Clone returns a deep copy so callers cannot alias store state.
func (c Chat) Clone() Chat {
	out := c
	out.Participants = slices.Clone(c.Participants)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return out
}

package outbox

import (
	"time"

	"mawneychat/pkg/models"
)

// Kind names the remote write an Op performs.
type Kind string

const (
	KindMessageSend   Kind = "message.send"
	KindChatsSync     Kind = "chats.sync"
	KindMessagesSync  Kind = "messages.sync"
	KindMessagesClear Kind = "messages.clear"
)

const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Op is one queued remote write. It is stored as JSON under outbox:<seq>.
type Op struct {
	Seq            uint64          `json:"seq"`
	Kind           Kind            `json:"kind"`
	ChatID         string          `json:"chatId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	Email          string          `json:"email,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	Drop           []string        `json:"drop,omitempty"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	NextAttempt    time.Time       `json:"nextAttempt"`
	CreatedAt      time.Time       `json:"createdAt"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Error          string          `json:"error,omitempty"`
}

// Ready reports whether op may be attempted at now.
func (op Op) Ready(now time.Time) bool {
	return op.Status == StatusPending && !op.NextAttempt.After(now)
}

// scope is the ordering domain of op: its chat, or its user for chat list syncs.
func (op Op) scope() string {
	if op.ChatID != "" {
		return op.ChatID
	}
	return "user:" + op.UserID
}

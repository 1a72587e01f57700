package polling

import (
	"time"
)

// Event names delivered to listeners.
type Event string

const (
	EventNewMessage    Event = "new_message"
	EventPollingUpdate Event = "polling_update"
)

// NewMessage is the payload of EventNewMessage.
type NewMessage struct {
	ChatID           string `json:"chatId"`
	UnreadCount      int    `json:"unreadCount"`
	ChatName         string `json:"chatName"`
	NewMessagesCount int    `json:"newMessagesCount"`
}

// Update is the payload of EventPollingUpdate, sent once per check.
type Update struct {
	TotalUnreadCount int       `json:"totalUnreadCount"`
	HasNewMessages   bool      `json:"hasNewMessages"`
	Timestamp        time.Time `json:"timestamp"`
}

// Listener observes poll events. payload is NewMessage or Update.
type Listener func(event Event, payload any)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

package models

import (
	"maps"
	"slices"
	"time"
)

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageDocument MessageType = "document"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageDocument:
		return true
	}
	return false
}

const (
	StatusSent = "sent"
	StatusRead = "read"
)

// SystemSenderID marks messages authored by the client itself.
const SystemSenderID = "system"

// Message is a single chat message. Only ReadBy and ReadReceipts change after creation.
type Message struct {
	ID           string                `json:"id"`
	ChatID       string                `json:"chatId"`
	SenderID     string                `json:"senderId"`
	Text         string                `json:"text"`
	Type         MessageType           `json:"type"`
	Attachment   *string               `json:"attachment"`
	Timestamp    time.Time             `json:"timestamp"`
	Status       string                `json:"status"`
	ReadBy       []string              `json:"readBy"`
	ReadReceipts map[string]*time.Time `json:"readReceipts"`
}

// GetID satisfies the repository merge constraint.
func (m Message) GetID() string { return m.ID }

// IsReadBy reports whether userID has read the message.
func (m Message) IsReadBy(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}

// IsUnreadFor reports whether the message counts as unread for userID.
func (m Message) IsUnreadFor(userID string) bool {
	return m.SenderID != userID && !m.IsReadBy(userID)
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	out := m
	out.ReadBy = slices.Clone(m.ReadBy)
	if out.ReadBy == nil {
		out.ReadBy = []string{}
	}
	if m.ReadReceipts != nil {
		out.ReadReceipts = make(map[string]*time.Time, len(m.ReadReceipts))
		for k, v := range m.ReadReceipts {
			if v != nil {
				ts := *v
				out.ReadReceipts[k] = &ts
			} else {
				out.ReadReceipts[k] = nil
			}
		}
	}
	if m.Attachment != nil {
		a := *m.Attachment
		out.Attachment = &a
	}
	return out
}

// MarkRead records userID as a reader at ts. It reports false when the
// message was already read by userID.
func (m *Message) MarkRead(userID string, ts time.Time) bool {
	if m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	if m.ReadReceipts == nil {
		m.ReadReceipts = map[string]*time.Time{}
	}
	t := ts
	m.ReadReceipts[userID] = &t
	return true
}

// MergeReceipts folds other's readers into m, keeping the earliest receipt time.
func (m *Message) MergeReceipts(other Message) {
	for _, u := range other.ReadBy {
		if !m.IsReadBy(u) {
			m.ReadBy = append(m.ReadBy, u)
		}
	}
	if len(other.ReadReceipts) == 0 {
		return
	}
	if m.ReadReceipts == nil {
		m.ReadReceipts = maps.Clone(other.ReadReceipts)
		return
	}
	for u, ts := range other.ReadReceipts {
		cur, ok := m.ReadReceipts[u]
		switch {
		case !ok, cur == nil:
			m.ReadReceipts[u] = ts
		case ts != nil && ts.Before(*cur):
			m.ReadReceipts[u] = ts
		}
	}
}

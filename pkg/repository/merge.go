package repository

import (
	"slices"

	"mawneychat/pkg/models"
)

// Identifiable is anything keyed by a string id.
type Identifiable interface {
	GetID() string
}

// MergeByID concatenates lists, keeping the first occurrence of every id.
// Order of first occurrences is preserved; empty ids are dropped.
func MergeByID[T Identifiable](lists ...[]T) []T {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[string]struct{}, n)
	out := make([]T, 0, n)
	for _, l := range lists {
		for _, item := range l {
			id := item.GetID()
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// MergeMessages dedupes by id like MergeByID, but read state from every
// copy is unioned into the surviving message so a receipt recorded in one
// store is never lost to another.
func MergeMessages(lists ...[]models.Message) []models.Message {
	idx := make(map[string]int)
	var out []models.Message
	for _, l := range lists {
		for _, m := range l {
			if m.ID == "" {
				continue
			}
			if i, ok := idx[m.ID]; ok {
				out[i].MergeReceipts(m)
				continue
			}
			idx[m.ID] = len(out)
			out = append(out, m.Clone())
		}
	}
	if out == nil {
		out = []models.Message{}
	}
	return out
}

// FilterChat returns the messages belonging to chatID.
func FilterChat(msgs []models.Message, chatID string) []models.Message {
	out := make([]models.Message, 0)
	for _, m := range msgs {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// WithoutChat returns msgs minus those belonging to chatID.
func WithoutChat(msgs []models.Message, chatID string) []models.Message {
	return slices.DeleteFunc(slices.Clone(msgs), func(m models.Message) bool { return m.ChatID == chatID })
}

// WithoutChatID returns chats minus the one with id.
func WithoutChatID(chats []models.Chat, id string) []models.Chat {
	return slices.DeleteFunc(slices.Clone(chats), func(c models.Chat) bool { return c.ID == id })
}

// ReplaceChat swaps the chat with c.ID for c, appending when absent.
func ReplaceChat(chats []models.Chat, c models.Chat) []models.Chat {
	out := slices.Clone(chats)
	for i := range out {
		if out[i].ID == c.ID {
			out[i] = c
			return out
		}
	}
	return append(out, c)
}

// SortMessages orders msgs oldest first; ties break on id for stability.
func SortMessages(msgs []models.Message) {
	slices.SortStableFunc(msgs, func(a, b models.Message) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// SortChats orders chats newest activity first.
func SortChats(chats []models.Chat) {
	slices.SortStableFunc(chats, func(a, b models.Chat) int {
		return b.EffectiveTime().Compare(a.EffectiveTime())
	})
}

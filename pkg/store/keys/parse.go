package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyKind classifies a raw local store key.
type KeyKind string

const (
	KindUserChats      KeyKind = "user_chats"
	KindUserMessages   KeyKind = "user_messages"
	KindSharedMessages KeyKind = "shared_messages"
	KindSharedGroups   KeyKind = "shared_group_chats"
	KindAvatar         KeyKind = "avatar"
	KindAssistant      KeyKind = "assistant_sessions"
	KindOutbox         KeyKind = "outbox"
	KindSystem         KeyKind = "system"
	KindOther          KeyKind = "other"
)

// ParsedKey is a key split into its kind and owning id.
type ParsedKey struct {
	Kind KeyKind
	ID   string
}

// ParseKey classifies key and extracts the user, chat or sequence id it is namespaced by.
func ParseKey(key string) ParsedKey {
	switch {
	case key == SharedGroupChats:
		return ParsedKey{Kind: KindSharedGroups}
	case strings.HasPrefix(key, UserChatsPrefix):
		return ParsedKey{Kind: KindUserChats, ID: strings.TrimPrefix(key, UserChatsPrefix)}
	case strings.HasPrefix(key, UserMessagesPrefix):
		return ParsedKey{Kind: KindUserMessages, ID: strings.TrimPrefix(key, UserMessagesPrefix)}
	case strings.HasPrefix(key, SharedMessagesPref):
		return ParsedKey{Kind: KindSharedMessages, ID: strings.TrimPrefix(key, SharedMessagesPref)}
	case strings.HasPrefix(key, "ai_sessions_"):
		return ParsedKey{Kind: KindAssistant, ID: strings.TrimPrefix(key, "ai_sessions_")}
	case strings.HasPrefix(key, OutboxPrefix):
		return ParsedKey{Kind: KindOutbox, ID: strings.TrimPrefix(key, OutboxPrefix)}
	case strings.HasPrefix(key, "system:"):
		return ParsedKey{Kind: KindSystem, ID: strings.TrimPrefix(key, "system:")}
	case strings.HasSuffix(key, "_avatar"):
		return ParsedKey{Kind: KindAvatar, ID: strings.TrimSuffix(key, "_avatar")}
	}
	return ParsedKey{Kind: KindOther, ID: key}
}

// ParseOutboxSeq returns the sequence number of an outbox key.
func ParseOutboxSeq(key string) (uint64, error) {
	if !strings.HasPrefix(key, OutboxPrefix) {
		return 0, fmt.Errorf("not an outbox key: %q", key)
	}
	return strconv.ParseUint(strings.TrimPrefix(key, OutboxPrefix), 10, 64)
}

// ParseDirectChatID returns the two participant ids of a direct chat id.
// Ids containing "_" are ambiguous; the split happens at the first match
// for which both halves are non-empty and ordered.
func ParseDirectChatID(chatID string) (string, string, error) {
	rest, ok := strings.CutPrefix(chatID, "direct_")
	if !ok {
		return "", "", fmt.Errorf("not a direct chat id: %q", chatID)
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] != '_' {
			continue
		}
		a, b := rest[:i], rest[i+1:]
		if a != "" && b != "" && a <= b {
			return a, b, nil
		}
	}
	return "", "", fmt.Errorf("malformed direct chat id: %q", chatID)
}

package keys

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// storage keys
func GenUserChatsKey(userID string) string {
	return fmt.Sprintf(UserChatsKey, userID)
}

func GenUserMessagesKey(userID string) string {
	return fmt.Sprintf(UserMessagesKey, userID)
}

func GenSharedMessagesKey(chatID string) string {
	return fmt.Sprintf(SharedMessagesKey, chatID)
}

func GenUserAvatarKey(userID string) string {
	return fmt.Sprintf(UserAvatarKey, userID)
}

func GenAssistantSessionsKey(userID string) string {
	return fmt.Sprintf(AssistantSessions, userID)
}

func GenOutboxKey(seq uint64) string {
	return fmt.Sprintf(OutboxKey, PadSeq(seq))
}

func PadSeq(seq uint64) string {
	return fmt.Sprintf("%0*d", SeqPadWidth, seq)
}

// ids
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// GenDirectChatID is symmetric in its arguments.
func GenDirectChatID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf(DirectChatID, a, b)
}

func GenGroupChatID(now time.Time) string {
	return fmt.Sprintf(GroupChatID, now.UnixMilli(), randomSuffix())
}

func GenAssistantChatID(userID string) string {
	return fmt.Sprintf(AssistantChatID, userID)
}

func GenMessageID(now time.Time) string {
	return fmt.Sprintf(MessageID, now.UnixMilli(), randomSuffix())
}

// GenIdempotencyKey returns a fresh opaque key for outbox operations.
func GenIdempotencyKey() string {
	return uuid.NewString()
}

package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/repository"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/telemetry"
)

// SendMessage posts a text message to chatID as the current user.
func (s *Store) SendMessage(ctx context.Context, chatID, text string) (*models.Message, error) {
	return s.SendAttachment(ctx, chatID, text, models.MessageText, nil)
}

// SendAttachment posts a message carrying an optional attachment (a URI or
// data URI). Text may be empty when an attachment is present.
func (s *Store) SendAttachment(ctx context.Context, chatID, text string, typ models.MessageType, attachment *string) (*models.Message, error) {
	user, ok := s.CurrentUser()
	if !ok {
		return nil, ErrNoCurrentUser
	}
	if typ == "" {
		typ = models.MessageText
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMessageType, typ)
	}
	if attachment != nil && *attachment == "" {
		attachment = nil
	}
	if strings.TrimSpace(text) == "" && attachment == nil {
		return nil, ErrEmptyMessage
	}
	if attachment != nil && int64(len(*attachment)) > s.opts.MaxAttachmentSize {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrAttachmentTooLarge,
			humanize.Bytes(uint64(len(*attachment))), humanize.Bytes(uint64(s.opts.MaxAttachmentSize)))
	}

	unlock := s.chatMu.Lock(chatID)
	defer unlock()

	c, ok := s.Chat(chatID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	now := s.opts.Now()
	msg := models.Message{
		ID:           keys.GenMessageID(now),
		ChatID:       chatID,
		SenderID:     user.ID,
		Text:         text,
		Type:         typ,
		Attachment:   attachment,
		Timestamp:    now,
		Status:       models.StatusSent,
		ReadBy:       []string{},
		ReadReceipts: pendingReceipts(c.Participants),
	}
	s.post(ctx, c, msg, user.ID)
	telemetry.MessageSent()
	logger.Debug("message_sent", "chat_id", chatID, "message_id", msg.ID, "type", msg.Type)
	out := msg.Clone()
	return &out, nil
}

// pendingReceipts seeds an unread receipt for every participant.
func pendingReceipts(participants []string) map[string]*time.Time {
	out := make(map[string]*time.Time, len(participants))
	for _, p := range participants {
		out[p] = nil
	}
	return out
}

// post applies msg everywhere it must live: outbox, shared partition,
// the sender's cache, memory, then every participant's chat preview.
// Callers hold the chat lock.
func (s *Store) post(ctx context.Context, c models.Chat, msg models.Message, self string) {
	remote := c.Type != models.ChatAIAssistant
	if remote {
		m := msg.Clone()
		s.enqueue(outbox.Op{Kind: outbox.KindMessageSend, ChatID: c.ID, UserID: msg.SenderID, Message: &m})
	}

	local := s.repo.Local()
	if err := local.AppendChatMessage(msg); err != nil {
		logger.Error("shared_message_save_failed", "chat_id", c.ID, "error", err)
	}
	if msg.SenderID == self {
		if err := local.UpdateUserMessages(self, func(cur []models.Message) []models.Message {
			return repository.MergeMessages(cur, []models.Message{msg})
		}); err != nil {
			logger.Error("user_message_save_failed", "user_id", self, "error", err)
		}
	}

	s.mu.Lock()
	s.messages[c.ID] = repository.MergeMessages(s.messages[c.ID], []models.Message{msg})
	msgs := repository.MergeMessages(s.messages[c.ID])
	if idx := s.chatIndexLocked(c.ID); idx >= 0 {
		s.chats[idx].LastMessage = &models.LastMessage{
			Text:      s.preview(msg),
			SenderID:  msg.SenderID,
			Timestamp: msg.Timestamp,
		}
		c = s.chats[idx].Clone()
	}
	s.mu.Unlock()

	s.fanOutPreview(c, msgs, self)
	if remote {
		s.enqueueChatsSync(c.Participants, nil)
	}
	telemetry.SetUnread(s.TotalUnreadCount())
	s.notifier.NotifyMessage(ctx, c, msg)
}

// fanOutPreview writes c's new preview into every participant's stored
// list, adding the chat where a participant's copy is missing.
func (s *Store) fanOutPreview(c models.Chat, msgs []models.Message, self string) {
	local := s.repo.Local()
	for _, p := range c.Participants {
		if p != self && s.users != nil {
			if _, known := s.users.Get(p); !known {
				continue
			}
		}
		cp := s.copyFor(c, p, msgs)
		err := local.UpdateUserChats(p, func(cur []models.Chat) []models.Chat {
			if cur == nil {
				cur = s.defaultChats(p)
			}
			for i := range cur {
				if cur[i].ID == c.ID {
					cur[i].LastMessage = cp.LastMessage
					cur[i].UnreadCount = cp.UnreadCount
					return cur
				}
			}
			return append(cur, cp)
		})
		if err != nil {
			logger.Error("participant_chats_save_failed", "user_id", p, "chat_id", c.ID, "error", err)
		}
	}
}

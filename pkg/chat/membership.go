package chat

import (
	"context"
	"fmt"
	"slices"

	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/repository"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/telemetry"
)

// MarkAsRead records the current user as a reader of every foreign
// message in chatID and returns how many changed. Repeated calls are
// no-ops.
func (s *Store) MarkAsRead(ctx context.Context, chatID string) (int, error) {
	self, ok := s.CurrentUser()
	if !ok {
		return 0, ErrNoCurrentUser
	}
	unlock := s.chatMu.Lock(chatID)
	defer unlock()
	if _, ok := s.Chat(chatID); !ok {
		return 0, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	now := s.opts.Now()
	markAll := func(msgs []models.Message) ([]models.Message, int) {
		n := 0
		for i := range msgs {
			if msgs[i].IsUnreadFor(self.ID) && msgs[i].MarkRead(self.ID, now) {
				n++
			}
		}
		return msgs, n
	}

	local := s.repo.Local()
	var sharedChanged int
	if err := local.UpdateChatMessages(chatID, func(cur []models.Message) []models.Message {
		out, n := markAll(cur)
		sharedChanged = n
		return out
	}); err != nil {
		logger.Error("shared_messages_save_failed", "chat_id", chatID, "error", err)
	}

	s.mu.Lock()
	msgs, changed := markAll(repository.MergeMessages(s.messages[chatID]))
	s.messages[chatID] = msgs
	if idx := s.chatIndexLocked(chatID); idx >= 0 {
		s.chats[idx].UnreadCount = 0
	}
	s.mu.Unlock()

	if changed > 0 || sharedChanged > 0 {
		s.persistSelf()
		s.enqueue(outbox.Op{Kind: outbox.KindMessagesSync, ChatID: chatID, UserID: self.ID})
		logger.Debug("chat_marked_read", "chat_id", chatID, "messages", changed)
	}
	telemetry.SetUnread(s.TotalUnreadCount())
	s.notifier.CancelChat(ctx, chatID)
	return changed, nil
}

// LeaveChat removes chatID from the current user's view only. Other
// participants keep their copies; groups get a notice and lose the
// caller from their member list.
func (s *Store) LeaveChat(ctx context.Context, chatID string) (bool, error) {
	self, ok := s.CurrentUser()
	if !ok {
		return false, ErrNoCurrentUser
	}
	unlock := s.chatMu.Lock(chatID)
	defer unlock()
	c, ok := s.Chat(chatID)
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	s.chats = repository.WithoutChatID(s.chats, chatID)
	delete(s.messages, chatID)
	s.dropped[chatID] = struct{}{}
	s.mu.Unlock()

	local := s.repo.Local()
	if err := local.UpdateUserChats(self.ID, func(cur []models.Chat) []models.Chat {
		return repository.WithoutChatID(cur, chatID)
	}); err != nil {
		logger.Error("user_chats_save_failed", "user_id", self.ID, "error", err)
	}
	if err := local.UpdateUserMessages(self.ID, func(cur []models.Message) []models.Message {
		return repository.WithoutChat(cur, chatID)
	}); err != nil {
		logger.Error("user_messages_save_failed", "user_id", self.ID, "error", err)
	}

	if c.Type == models.ChatGroup {
		now := s.opts.Now()
		remaining := slices.DeleteFunc(slices.Clone(c.Participants), func(p string) bool { return p == self.ID })
		notice := models.Message{
			ID:           keys.GenMessageID(now),
			ChatID:       chatID,
			SenderID:     models.SystemSenderID,
			Text:         fmt.Sprintf("%s left the group", displayName(self)),
			Type:         models.MessageText,
			Timestamp:    now,
			Status:       models.StatusSent,
			ReadBy:       []string{},
			ReadReceipts: pendingReceipts(remaining),
		}
		if err := local.AppendChatMessage(notice); err != nil {
			logger.Error("shared_message_save_failed", "chat_id", chatID, "error", err)
		}
		if err := local.UpdateSharedGroupChats(func(cur []models.Chat) []models.Chat {
			for i := range cur {
				if cur[i].ID == chatID {
					cur[i].Participants = slices.DeleteFunc(slices.Clone(cur[i].Participants), func(p string) bool { return p == self.ID })
				}
			}
			return cur
		}); err != nil {
			logger.Error("shared_group_save_failed", "chat_id", chatID, "error", err)
		}
		s.enqueue(outbox.Op{Kind: outbox.KindMessagesSync, ChatID: chatID, UserID: self.ID})
	}

	s.enqueueChatsSync([]string{self.ID}, map[string][]string{self.ID: {chatID}})
	telemetry.SetUnread(s.TotalUnreadCount())
	s.notifier.CancelChat(ctx, chatID)
	logger.Info("chat_left", "chat_id", chatID, "user_id", self.ID)
	return true, nil
}

// DeleteChat removes chatID for every participant: their chat lists and
// message caches, the shared partition and the shared group table.
func (s *Store) DeleteChat(ctx context.Context, chatID string) (bool, error) {
	self, ok := s.CurrentUser()
	if !ok {
		return false, ErrNoCurrentUser
	}
	unlock := s.chatMu.Lock(chatID)
	defer unlock()
	c, ok := s.Chat(chatID)
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	s.chats = repository.WithoutChatID(s.chats, chatID)
	delete(s.messages, chatID)
	s.dropped[chatID] = struct{}{}
	s.mu.Unlock()

	local := s.repo.Local()
	participants := c.Participants
	if !slices.Contains(participants, self.ID) {
		participants = append(slices.Clone(participants), self.ID)
	}
	drop := make(map[string][]string, len(participants))
	for _, p := range participants {
		drop[p] = []string{chatID}
		if err := local.UpdateUserChats(p, func(cur []models.Chat) []models.Chat {
			return repository.WithoutChatID(cur, chatID)
		}); err != nil {
			logger.Error("user_chats_save_failed", "user_id", p, "error", err)
		}
		if err := local.UpdateUserMessages(p, func(cur []models.Message) []models.Message {
			return repository.WithoutChat(cur, chatID)
		}); err != nil {
			logger.Error("user_messages_save_failed", "user_id", p, "error", err)
		}
	}
	if err := local.DeleteChatMessages(chatID); err != nil {
		logger.Error("shared_messages_delete_failed", "chat_id", chatID, "error", err)
	}
	if err := local.UpdateSharedGroupChats(func(cur []models.Chat) []models.Chat {
		return repository.WithoutChatID(cur, chatID)
	}); err != nil {
		logger.Error("shared_group_save_failed", "chat_id", chatID, "error", err)
	}

	if s.outbox != nil {
		if n, err := s.outbox.DropChat(chatID); err != nil {
			logger.Error("outbox_drop_failed", "chat_id", chatID, "error", err)
		} else if n > 0 {
			logger.Debug("outbox_ops_dropped", "chat_id", chatID, "count", n)
		}
	}
	if c.Type != models.ChatAIAssistant {
		s.enqueue(outbox.Op{Kind: outbox.KindMessagesClear, ChatID: chatID, UserID: self.ID})
		s.enqueueChatsSync(participants, drop)
	}
	telemetry.SetUnread(s.TotalUnreadCount())
	s.notifier.CancelChat(ctx, chatID)
	logger.Info("chat_deleted", "chat_id", chatID, "participants", len(participants))
	return true, nil
}

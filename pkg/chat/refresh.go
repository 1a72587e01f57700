package chat

import (
	"context"
	"errors"
	"slices"

	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/repository"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/telemetry"
)

// Refresh reloads the shared group table and the server's chats and
// messages, merges them into memory and rewrites the local caches. Remote
// failures are returned joined; whatever could be merged is kept.
func (s *Store) Refresh(ctx context.Context) error {
	self, ok := s.CurrentUser()
	if !ok {
		return ErrNoCurrentUser
	}
	var errs []error
	local := s.repo.Local()

	remoteChats, err := s.repo.PullChats(ctx, self)
	if err != nil {
		errs = append(errs, err)
	}
	groups, err := local.LoadSharedGroupChats()
	if err != nil {
		logger.Warn("shared_group_chats_unreadable", "error", err)
	}
	var mine []models.Chat
	for _, g := range groups {
		if g.HasParticipant(self.ID) {
			mine = append(mine, g)
		}
	}
	s.mu.RLock()
	current := make([]models.Chat, len(s.chats))
	copy(current, s.chats)
	dropped := make(map[string]struct{}, len(s.dropped))
	for id := range s.dropped {
		dropped[id] = struct{}{}
	}
	s.mu.RUnlock()

	// other sessions on this device may have added or removed chats
	stored, err := local.LoadUserChats(self.ID)
	storedOK := err == nil
	if err != nil {
		logger.Warn("user_chats_unreadable", "user_id", self.ID, "error", err)
		stored = nil
	} else if has, herr := local.HasUserChats(self.ID); herr != nil || !has {
		storedOK = false
	}
	gone := s.pendingDrops(self.ID)
	for _, c := range stored {
		// recreated after the drop was queued
		delete(gone, c.ID)
	}
	if storedOK {
		for id := range s.removedElsewhere(self.ID, current, stored, mine, remoteChats) {
			gone[id] = struct{}{}
		}
	}

	var candidates []models.Chat
	for _, c := range repository.MergeByID(current, stored, mine, remoteChats) {
		_, isDropped := dropped[c.ID]
		_, isGone := gone[c.ID]
		if isDropped || isGone || s.invalidID(c.ID) {
			continue
		}
		candidates = append(candidates, c)
	}

	pulled := make(map[string][]models.Message, len(candidates))
	for _, c := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if c.Type == models.ChatAIAssistant {
			continue
		}
		msgs, err := s.repo.PullChatMessages(ctx, c.ID)
		if err != nil {
			errs = append(errs, err)
		}
		pulled[c.ID] = msgs
	}

	s.mu.Lock()
	if s.user == nil || s.user.ID != self.ID {
		s.mu.Unlock()
		return errors.Join(append(errs, ErrNoCurrentUser)...)
	}
	// chats removed while the network calls ran stay removed
	var merged []models.Chat
	for _, c := range candidates {
		if _, gone := s.dropped[c.ID]; gone {
			continue
		}
		merged = append(merged, c)
	}
	merged = repository.MergeByID(s.chats, merged)
	keep := merged[:0]
	for _, c := range merged {
		_, isDropped := s.dropped[c.ID]
		_, isGone := gone[c.ID]
		if !isDropped && !isGone {
			keep = append(keep, c)
		}
	}
	merged = keep
	for id := range gone {
		delete(s.messages, id)
	}
	for i, c := range merged {
		msgs := repository.MergeMessages(s.messages[c.ID], pulled[c.ID])
		s.messages[c.ID] = msgs
		merged[i] = s.refreshPreview(c, msgs)
	}
	s.chats = merged
	s.mu.Unlock()

	s.persistSelf()
	if len(gone) > 0 {
		logger.Debug("chats_removed_elsewhere", "user_id", self.ID, "count", len(gone))
	}
	telemetry.SetUnread(s.TotalUnreadCount())
	if err := errors.Join(errs...); err != nil {
		logger.Debug("chat_refresh_partial", "user_id", self.ID, "error", err)
		return err
	}
	logger.Debug("chat_refresh_done", "user_id", self.ID, "chats", len(merged))
	return nil
}

// pendingDrops returns the chats queued for removal from userID's server
// list. Until those writes land, the server copy must not revive them.
func (s *Store) pendingDrops(userID string) map[string]struct{} {
	out := map[string]struct{}{}
	if s.outbox == nil {
		return out
	}
	ops, err := s.outbox.Pending()
	if err != nil {
		logger.Warn("outbox_unreadable", "error", err)
		return out
	}
	for _, op := range ops {
		if op.Kind == outbox.KindChatsSync && op.UserID == userID {
			for _, id := range op.Drop {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// removedElsewhere returns the chats held in memory that no durable source
// lists any more: not this user's stored list, not the shared group table,
// not the server. Another session deleted or left them. Each suspect is
// rechecked under its chat lock so a chat still being created here is kept.
func (s *Store) removedElsewhere(userID string, current, stored, groups, remote []models.Chat) map[string]struct{} {
	listed := make(map[string]struct{}, len(stored)+len(groups)+len(remote))
	for _, list := range [][]models.Chat{stored, groups, remote} {
		for _, c := range list {
			listed[c.ID] = struct{}{}
		}
	}
	out := map[string]struct{}{}
	for _, c := range current {
		if c.Type == models.ChatAIAssistant {
			continue
		}
		if _, ok := listed[c.ID]; ok {
			continue
		}
		unlock := s.chatMu.Lock(c.ID)
		again, err := s.repo.Local().LoadUserChats(userID)
		unlock()
		if err != nil {
			return out
		}
		if !slices.ContainsFunc(again, func(sc models.Chat) bool { return sc.ID == c.ID }) {
			out[c.ID] = struct{}{}
		}
	}
	return out
}

// Deliver performs one outbox op against the remote API. It is installed
// as the outbox handler.
func (s *Store) Deliver(ctx context.Context, op outbox.Op) error {
	local := s.repo.Local()
	switch op.Kind {
	case outbox.KindMessageSend:
		if op.Message != nil {
			if err := local.AppendChatMessage(*op.Message); err != nil {
				return err
			}
		}
		return s.repo.SyncChatMessages(ctx, op.ChatID)
	case outbox.KindMessagesSync:
		return s.repo.SyncChatMessages(ctx, op.ChatID)
	case outbox.KindMessagesClear:
		return s.repo.ClearChatMessages(ctx, op.ChatID)
	case outbox.KindChatsSync:
		if err := s.repo.SyncChats(ctx, op.UserID, op.Email, op.Drop); err != nil {
			return err
		}
		if self, ok := s.CurrentUser(); ok && self.ID == op.UserID && len(op.Drop) > 0 {
			s.mu.Lock()
			for _, id := range op.Drop {
				delete(s.dropped, id)
			}
			s.mu.Unlock()
		}
		return nil
	default:
		return errors.Join(outbox.ErrPermanent, errors.New("unknown op kind "+string(op.Kind)))
	}
}

package chat

import (
	"context"
	"fmt"
	"strings"

	"mawneychat/pkg/models"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
)

// CreateDirectChat returns the one-to-one chat with userID, creating it on
// first use. Both users derive the same id.
func (s *Store) CreateDirectChat(ctx context.Context, userID string) (models.Chat, error) {
	self, ok := s.CurrentUser()
	if !ok {
		return models.Chat{}, ErrNoCurrentUser
	}
	if userID == "" || userID == self.ID {
		return models.Chat{}, fmt.Errorf("%w: %q", ErrInvalidParticipant, userID)
	}
	other, ok := s.lookupUser(userID)
	if !ok {
		return models.Chat{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}

	id := keys.GenDirectChatID(self.ID, other.ID)
	unlock := s.chatMu.Lock(id)
	defer unlock()

	if existing, ok := s.Chat(id); ok {
		return existing, nil
	}
	c := models.Chat{
		ID:           id,
		Name:         other.Name,
		Type:         models.ChatDirect,
		Participants: []string{self.ID, other.ID},
		CreatedBy:    self.ID,
		CreatedAt:    s.opts.Now(),
	}
	if c.Name == "" {
		c.Name = other.ID
	}
	s.mu.Lock()
	delete(s.dropped, id)
	s.chats = append(s.chats, c)
	s.mu.Unlock()

	s.persistSelf()
	s.enqueueChatsSync([]string{self.ID}, nil)
	logger.Info("direct_chat_created", "chat_id", id, "user_id", self.ID)
	return c.Clone(), nil
}

// CreateGroupChat creates a new group with the current user and
// participantIDs and posts a welcome message.
func (s *Store) CreateGroupChat(ctx context.Context, name string, participantIDs []string) (models.Chat, error) {
	self, ok := s.CurrentUser()
	if !ok {
		return models.Chat{}, ErrNoCurrentUser
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Chat{}, ErrEmptyChatName
	}
	members := []string{self.ID}
	seen := map[string]bool{self.ID: true}
	for _, p := range participantIDs {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if _, ok := s.lookupUser(p); !ok {
			return models.Chat{}, fmt.Errorf("%w: %s", ErrUnknownUser, p)
		}
		seen[p] = true
		members = append(members, p)
	}
	if len(members) < 2 {
		return models.Chat{}, fmt.Errorf("%w: a group needs at least one other member", ErrInvalidParticipant)
	}

	now := s.opts.Now()
	c := models.Chat{
		ID:           keys.GenGroupChatID(now),
		Name:         name,
		Type:         models.ChatGroup,
		Participants: members,
		CreatedBy:    self.ID,
		CreatedAt:    now,
	}
	unlock := s.chatMu.Lock(c.ID)
	defer unlock()

	local := s.repo.Local()
	if err := local.UpdateSharedGroupChats(func(cur []models.Chat) []models.Chat {
		return append(cur, c.Clone())
	}); err != nil {
		logger.Error("shared_group_save_failed", "chat_id", c.ID, "error", err)
	}
	s.mu.Lock()
	s.chats = append(s.chats, c)
	s.mu.Unlock()
	s.persistSelf()

	welcome := models.Message{
		ID:           keys.GenMessageID(now),
		ChatID:       c.ID,
		SenderID:     self.ID,
		Text:         fmt.Sprintf("%s created the group \"%s\"", displayName(self), name),
		Type:         models.MessageText,
		Timestamp:    now,
		Status:       models.StatusSent,
		ReadBy:       []string{},
		ReadReceipts: pendingReceipts(members),
	}
	s.post(ctx, c, welcome, self.ID)
	logger.Info("group_chat_created", "chat_id", c.ID, "members", len(members))

	out, _ := s.Chat(c.ID)
	return out, nil
}

func (s *Store) lookupUser(id string) (models.User, bool) {
	if s.users == nil {
		return models.User{}, false
	}
	return s.users.Get(id)
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

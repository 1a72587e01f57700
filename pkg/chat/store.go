package chat

import (
	"context"
	"strings"
	"sync"

	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/repository"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/store/locks"
	"mawneychat/pkg/telemetry"
	"mawneychat/pkg/users"
)

// Store is the in-memory view of the signed-in user's chats and messages,
// backed by the local store and reconciled with the remote API.
type Store struct {
	repo     *repository.Repository
	outbox   *outbox.Outbox
	users    *users.Directory
	notifier Notifier
	opts     Options
	chatMu   *locks.Keyed

	mu       sync.RWMutex
	user     *models.User
	chats    []models.Chat
	messages map[string][]models.Message
	dropped  map[string]struct{}

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New wires a store. ob and notifier may be nil; without an outbox remote
// writes are skipped.
func New(repo *repository.Repository, ob *outbox.Outbox, dir *users.Directory, notifier Notifier, opts Options) *Store {
	opts.applyDefaults()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		repo:     repo,
		outbox:   ob,
		users:    dir,
		notifier: notifier,
		opts:     opts,
		chatMu:   locks.NewKeyed(),
		messages: map[string][]models.Message{},
		dropped:  map[string]struct{}{},
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Initialize loads user's state from the local store and starts a
// background refresh. Storage problems are logged, never returned.
func (s *Store) Initialize(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrNoCurrentUser
	}
	u := *user
	chats, byChat := s.loadLocal(u)

	s.mu.Lock()
	s.user = &u
	s.chats = chats
	s.messages = byChat
	s.dropped = map[string]struct{}{}
	s.mu.Unlock()

	s.replayOutbox(u)
	s.persistSelf()
	telemetry.SetUnread(s.TotalUnreadCount())
	logger.Info("chat_state_initialized", "user_id", u.ID, "chats", len(chats))

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.Refresh(s.bgCtx); err != nil {
			logger.Warn("initial_refresh_failed", "user_id", u.ID, "error", err)
		}
	}()
	return nil
}

// Close stops background work started by Initialize.
func (s *Store) Close() {
	s.bgCancel()
	s.bg.Wait()
}

// CurrentUser returns the signed-in user.
func (s *Store) CurrentUser() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

func (s *Store) invalidID(id string) bool {
	if id == "" {
		return true
	}
	for _, tok := range s.opts.InvalidIDTokens {
		if tok != "" && strings.Contains(id, tok) {
			return true
		}
	}
	return false
}

func (s *Store) defaultChats(userID string) []models.Chat {
	return []models.Chat{{
		ID:           keys.GenAssistantChatID(userID),
		Name:         "AI Assistant",
		Type:         models.ChatAIAssistant,
		Participants: []string{userID},
		CreatedBy:    userID,
		CreatedAt:    s.opts.Now(),
	}}
}

// loadLocal reads the per-user list, recovering from corruption, and
// merges in the shared group table and every message copy.
func (s *Store) loadLocal(u models.User) ([]models.Chat, map[string][]models.Message) {
	local := s.repo.Local()

	chats, err := local.LoadUserChats(u.ID)
	corrupt := err != nil
	for _, c := range chats {
		if s.invalidID(c.ID) {
			corrupt = true
			break
		}
	}
	exists, herr := local.HasUserChats(u.ID)
	if herr != nil {
		logger.Error("user_chats_lookup_failed", "user_id", u.ID, "error", herr)
	}
	switch {
	case corrupt:
		logger.Warn("corrupted_chat_state", "user_id", u.ID, "error", err)
		if werr := local.WipeUser(u.ID); werr != nil {
			logger.Error("chat_state_wipe_failed", "user_id", u.ID, "error", werr)
		}
		telemetry.StateRecovered()
		chats = s.defaultChats(u.ID)
	case !exists:
		chats = s.defaultChats(u.ID)
	}

	groups, err := local.LoadSharedGroupChats()
	if err != nil {
		logger.Warn("shared_group_chats_unreadable", "error", err)
	}
	var mine []models.Chat
	for _, g := range groups {
		if g.HasParticipant(u.ID) && !s.invalidID(g.ID) {
			mine = append(mine, g)
		}
	}
	chats = repository.MergeByID(chats, mine)

	userMsgs, err := local.LoadUserMessages(u.ID)
	if err != nil {
		logger.Warn("user_messages_unreadable", "user_id", u.ID, "error", err)
		userMsgs = nil
	}
	byChat := make(map[string][]models.Message, len(chats))
	for _, c := range chats {
		shared, err := local.LoadChatMessages(c.ID)
		if err != nil {
			logger.Warn("shared_messages_unreadable", "chat_id", c.ID, "error", err)
		}
		byChat[c.ID] = repository.MergeMessages(repository.FilterChat(userMsgs, c.ID), shared)
	}
	for i := range chats {
		chats[i] = s.refreshPreview(chats[i], byChat[chats[i].ID])
	}
	return chats, byChat
}

// replayOutbox re-applies queued sends and pending drops so state written
// before a crash is visible again.
func (s *Store) replayOutbox(u models.User) {
	if s.outbox == nil {
		return
	}
	ops, err := s.outbox.Pending()
	if err != nil {
		logger.Error("outbox_replay_failed", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	replayed := 0
	for _, op := range ops {
		switch op.Kind {
		case outbox.KindChatsSync:
			if op.UserID == u.ID {
				for _, id := range op.Drop {
					s.dropped[id] = struct{}{}
				}
			}
		case outbox.KindMessageSend:
			if op.Message == nil {
				continue
			}
			idx := s.chatIndexLocked(op.Message.ChatID)
			if idx < 0 {
				continue
			}
			s.messages[op.Message.ChatID] = repository.MergeMessages(s.messages[op.Message.ChatID], []models.Message{*op.Message})
			s.chats[idx] = s.refreshPreview(s.chats[idx], s.messages[op.Message.ChatID])
			replayed++
		}
	}
	if replayed > 0 {
		logger.Info("outbox_sends_replayed", "count", replayed)
	}
}

func (s *Store) chatIndexLocked(id string) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

// refreshPreview moves lastMessage forward when msgs hold a newer message.
func (s *Store) refreshPreview(c models.Chat, msgs []models.Message) models.Chat {
	var latest *models.Message
	for i := range msgs {
		if latest == nil || msgs[i].Timestamp.After(latest.Timestamp) {
			latest = &msgs[i]
		}
	}
	if latest == nil {
		return c
	}
	if c.LastMessage != nil && !latest.Timestamp.After(c.LastMessage.Timestamp) {
		return c
	}
	c.LastMessage = &models.LastMessage{
		Text:      s.preview(*latest),
		SenderID:  latest.SenderID,
		Timestamp: latest.Timestamp,
	}
	return c
}

// preview truncates text for the chat list.
func (s *Store) preview(m models.Message) string {
	text := m.Text
	if strings.TrimSpace(text) == "" && m.Attachment != nil {
		switch m.Type {
		case models.MessageImage:
			text = "Sent an image"
		case models.MessageDocument:
			text = "Sent a document"
		default:
			text = "Sent an attachment"
		}
	}
	r := []rune(text)
	if len(r) > s.opts.PreviewLength {
		return string(r[:s.opts.PreviewLength]) + "..."
	}
	return text
}

func unreadFor(userID string, msgs []models.Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsUnreadFor(userID) {
			n++
		}
	}
	return n
}

// Chats returns the user's chats, newest activity first, with unread
// counts derived from the messages.
func (s *Store) Chats() []models.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return []models.Chat{}
	}
	out := make([]models.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		cp := c.Clone()
		cp.UnreadCount = unreadFor(s.user.ID, s.messages[c.ID])
		out = append(out, cp)
	}
	repository.SortChats(out)
	return out
}

// Chat returns one chat by id.
func (s *Store) Chat(chatID string) (models.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.chatIndexLocked(chatID)
	if idx < 0 || s.user == nil {
		return models.Chat{}, false
	}
	cp := s.chats[idx].Clone()
	cp.UnreadCount = unreadFor(s.user.ID, s.messages[chatID])
	return cp, true
}

// Messages returns chatID's messages oldest first.
func (s *Store) Messages(chatID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.messages[chatID]
	out := make([]models.Message, 0, len(src))
	for _, m := range src {
		out = append(out, m.Clone())
	}
	repository.SortMessages(out)
	return out
}

// UnreadCount is the number of messages in chatID not sent or read by the user.
func (s *Store) UnreadCount(chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return 0
	}
	return unreadFor(s.user.ID, s.messages[chatID])
}

func (s *Store) TotalUnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return 0
	}
	total := 0
	for _, c := range s.chats {
		total += unreadFor(s.user.ID, s.messages[c.ID])
	}
	return total
}

// persistSelf writes the in-memory chats and messages back to the user's
// local caches.
func (s *Store) persistSelf() {
	s.mu.RLock()
	if s.user == nil {
		s.mu.RUnlock()
		return
	}
	uid := s.user.ID
	chats := make([]models.Chat, 0, len(s.chats))
	var msgs []models.Message
	for _, c := range s.chats {
		cp := c.Clone()
		cp.UnreadCount = unreadFor(uid, s.messages[c.ID])
		chats = append(chats, cp)
		msgs = append(msgs, s.messages[c.ID]...)
	}
	s.mu.RUnlock()

	local := s.repo.Local()
	if err := local.SaveUserChats(uid, chats); err != nil {
		logger.Error("user_chats_save_failed", "user_id", uid, "error", err)
	}
	if err := local.UpdateUserMessages(uid, func([]models.Message) []models.Message {
		return repository.MergeMessages(msgs)
	}); err != nil {
		logger.Error("user_messages_save_failed", "user_id", uid, "error", err)
	}
}

// copyFor renders c as it appears in userID's list.
func (s *Store) copyFor(c models.Chat, userID string, msgs []models.Message) models.Chat {
	cp := c.Clone()
	if cp.Type == models.ChatDirect && s.users != nil {
		for _, p := range cp.Participants {
			if p != userID {
				cp.Name = s.users.DisplayName(p)
				break
			}
		}
	}
	cp.UnreadCount = unreadFor(userID, msgs)
	return cp
}

// enqueue queues a remote write. Failures are logged; local state is
// already durable.
func (s *Store) enqueue(op outbox.Op) {
	if s.outbox == nil || !s.repo.HasRemote() {
		return
	}
	if _, err := s.outbox.Enqueue(op); err != nil {
		logger.Error("outbox_enqueue_failed", "kind", op.Kind, "chat_id", op.ChatID, "error", err)
	}
}

// enqueueChatsSync queues a chat list sync for every participant the
// directory knows an email for.
func (s *Store) enqueueChatsSync(participants []string, drop map[string][]string) {
	for _, p := range participants {
		email := ""
		if s.users != nil {
			if u, ok := s.users.Get(p); ok {
				email = u.Email
			}
		}
		if email == "" {
			continue
		}
		s.enqueue(outbox.Op{Kind: outbox.KindChatsSync, UserID: p, Email: email, Drop: drop[p]})
	}
}

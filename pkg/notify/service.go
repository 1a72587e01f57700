package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mawneychat/pkg/config"
	"mawneychat/pkg/models"
	"mawneychat/pkg/polling"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/telemetry"
)

// Names resolves user ids to display names.
type Names interface {
	DisplayName(id string) string
}

// Service turns chat events into notifications. It satisfies the chat
// store's notifier hook and listens to the poller.
type Service struct {
	sink  Notifier
	names Names
	now   func() time.Time

	mu        sync.Mutex
	self      string
	scheduled map[string][]string
}

func New(sink Notifier, names Names) *Service {
	if sink == nil {
		sink = LogNotifier{}
	}
	return &Service{sink: sink, names: names, now: time.Now, scheduled: map[string][]string{}}
}

// FromConfig picks the sink named by cfg.Mode.
func FromConfig(cfg config.NotifyConfig, names Names) *Service {
	if strings.EqualFold(cfg.Mode, "webhook") && cfg.WebhookURL != "" {
		return New(NewWebhookNotifier(cfg.WebhookURL, 0), names)
	}
	return New(LogNotifier{}, names)
}

// SetCurrentUser records whose device this is. Messages sent by that user
// never produce a notification.
func (s *Service) SetCurrentUser(id string) {
	s.mu.Lock()
	s.self = id
	s.mu.Unlock()
}

func (s *Service) currentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *Service) name(id string) string {
	if s.names == nil {
		return id
	}
	return s.names.DisplayName(id)
}

// ChatName is the human readable title of c as seen by the current user.
func (s *Service) ChatName(c models.Chat) string {
	if c.Type == models.ChatDirect {
		self := s.currentUser()
		for _, p := range c.Participants {
			if p != self {
				return s.name(p)
			}
		}
	}
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// NotifyMessage schedules a notification for msg unless the current user
// sent it.
func (s *Service) NotifyMessage(ctx context.Context, c models.Chat, msg models.Message) {
	self := s.currentUser()
	if msg.SenderID == self {
		telemetry.Notification("suppressed")
		return
	}
	body := msg.Text
	if strings.TrimSpace(body) == "" {
		body = "Sent an attachment"
	}
	if c.Type == models.ChatGroup {
		body = s.name(msg.SenderID) + ": " + body
	}
	s.schedule(ctx, Notification{
		ChatID:   c.ID,
		Title:    s.ChatName(c),
		Body:     body,
		SenderID: msg.SenderID,
	})
}

// HandleEvent is a poller listener.
func (s *Service) HandleEvent(event polling.Event, payload any) {
	if event != polling.EventNewMessage {
		return
	}
	nm, ok := payload.(polling.NewMessage)
	if !ok || nm.NewMessagesCount <= 0 {
		return
	}
	body := "1 new message"
	if nm.NewMessagesCount > 1 {
		body = fmt.Sprintf("%d new messages", nm.NewMessagesCount)
	}
	title := nm.ChatName
	if title == "" {
		title = nm.ChatID
	}
	s.schedule(context.Background(), Notification{ChatID: nm.ChatID, Title: title, Body: body})
}

func (s *Service) schedule(ctx context.Context, n Notification) {
	now := s.now()
	n.ID = keys.GenMessageID(now)
	n.At = now
	if err := s.sink.Schedule(ctx, n); err != nil {
		telemetry.Notification("error")
		logger.Warn("notification_schedule_failed", "chat_id", n.ChatID, "error", err)
		return
	}
	s.mu.Lock()
	s.scheduled[n.ChatID] = append(s.scheduled[n.ChatID], n.ID)
	s.mu.Unlock()
	telemetry.Notification("scheduled")
}

// Pending returns the ids of notifications scheduled for chatID.
func (s *Service) Pending(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scheduled[chatID]...)
}

// CancelChat clears every notification scheduled for chatID.
func (s *Service) CancelChat(ctx context.Context, chatID string) {
	s.mu.Lock()
	ids := s.scheduled[chatID]
	delete(s.scheduled, chatID)
	s.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	if err := s.sink.Cancel(ctx, chatID, ids); err != nil {
		logger.Warn("notification_cancel_failed", "chat_id", chatID, "error", err)
		return
	}
	telemetry.Notification("cancelled")
}

package polling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"mawneychat/pkg/config"
	"mawneychat/pkg/models"
	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/telemetry"
)

// Source is the chat state the poller watches.
type Source interface {
	Chats() []models.Chat
	Refresh(ctx context.Context) error
}

type Options struct {
	Interval     time.Duration
	Cron         string
	CheckTimeout time.Duration
	NotifyGroups bool
	Now          func() time.Time
}

func OptionsFromConfig(pc config.PollingConfig) Options {
	return Options{
		Interval:     pc.Interval.Duration(),
		Cron:         pc.Cron,
		CheckTimeout: pc.CheckTimeout.Duration(),
		NotifyGroups: pc.NotifyGroups,
	}
}

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Service periodically refreshes a Source and reports unread changes.
type Service struct {
	src  Source
	opts Options

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    ListenerID
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	checking atomic.Bool
}

func New(src Source, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{src: src, opts: opts}
}

// AddListener registers fn. Listeners run synchronously in registration order.
func (s *Service) AddListener(fn Listener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: s.nextID, fn: fn})
	return s.nextID
}

func (s *Service) RemoveListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Service) emit(event Event, payload any) {
	s.mu.Lock()
	ls := make([]listenerEntry, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.Unlock()
	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("polling_listener_panic", "event", event, "listener", l.id, "panic", r)
				}
			}()
			l.fn(event, payload)
		}()
	}
}

// Running reports whether the background loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start launches the poll loop. Calling it while running is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	if s.opts.Cron != "" {
		logger.Info("polling_started", "cron", s.opts.Cron)
		go s.cronLoop(loopCtx)
		return
	}
	logger.Info("polling_started", "interval", s.opts.Interval.String())
	go s.intervalLoop(loopCtx)
}

// Stop halts the loop and waits for an in-flight check.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logger.Info("polling_stopped")
}

func (s *Service) intervalLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) cronLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next, err := gronx.NextTickAfter(s.opts.Cron, s.opts.Now(), false)
		if err != nil {
			logger.Error("polling_nexttick_failed", "cron", s.opts.Cron, "error", err)
			select {
			case <-time.After(s.opts.Interval):
				s.tick(ctx)
			case <-ctx.Done():
				return
			}
			continue
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if !s.checking.CompareAndSwap(false, true) {
		telemetry.PollCompleted("skipped")
		logger.Debug("polling_check_skipped", "reason", "check_in_flight")
		return
	}
	defer s.checking.Store(false)
	s.CheckForNewMessages(ctx)
}

func (s *Service) watched(c models.Chat) bool {
	switch c.Type {
	case models.ChatAIAssistant:
		return false
	case models.ChatGroup:
		return s.opts.NotifyGroups
	}
	return true
}

// CheckForNewMessages refreshes the source and emits new_message for every
// watched chat whose unread count grew, then exactly one polling_update.
func (s *Service) CheckForNewMessages(ctx context.Context) Update {
	before := map[string]int{}
	for _, c := range s.src.Chats() {
		if s.watched(c) {
			before[c.ID] = c.UnreadCount
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
	err := s.src.Refresh(checkCtx)
	cancel()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.Warn("polling_refresh_failed", "error", err)
	}
	telemetry.PollCompleted(outcome)

	total, fresh := 0, 0
	for _, c := range s.src.Chats() {
		total += c.UnreadCount
		if !s.watched(c) {
			continue
		}
		prev := before[c.ID]
		if c.UnreadCount > prev {
			delta := c.UnreadCount - prev
			fresh += delta
			s.emit(EventNewMessage, NewMessage{
				ChatID:           c.ID,
				UnreadCount:      c.UnreadCount,
				ChatName:         c.Name,
				NewMessagesCount: delta,
			})
		}
	}
	telemetry.NewMessages(fresh)
	telemetry.SetUnread(total)

	up := Update{TotalUnreadCount: total, HasNewMessages: fresh > 0, Timestamp: s.opts.Now()}
	s.emit(EventPollingUpdate, up)
	if fresh > 0 {
		logger.Info("polling_new_messages", "count", fresh, "total_unread", total)
	}
	return up
}

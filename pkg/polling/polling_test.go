package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mawneychat/pkg/models"
)

type fakeSource struct {
	mu     sync.Mutex
	chats  []models.Chat
	next   []models.Chat
	err    error
	calls  int
	block  chan struct{}
	inside chan struct{}
}

func (f *fakeSource) Chats() []models.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Chat, len(f.chats))
	copy(out, f.chats)
	return out
}

func (f *fakeSource) Refresh(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	block, inside := f.block, f.inside
	f.mu.Unlock()
	if inside != nil {
		inside <- struct{}{}
	}
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next != nil {
		f.chats = f.next
		f.next = nil
	}
	return f.err
}

func chat(id string, typ models.ChatType, unread int) models.Chat {
	return models.Chat{ID: id, Name: "name-" + id, Type: typ, UnreadCount: unread}
}

type recorded struct {
	event   Event
	payload any
}

func record(s *Service) *[]recorded {
	var out []recorded
	s.AddListener(func(e Event, p any) { out = append(out, recorded{e, p}) })
	return &out
}

func TestNewMessageOnlyOnIncrease(t *testing.T) {
	src := &fakeSource{
		chats: []models.Chat{
			chat("d1", models.ChatDirect, 1),
			chat("d2", models.ChatDirect, 3),
			chat("ai", models.ChatAIAssistant, 0),
		},
		next: []models.Chat{
			chat("d1", models.ChatDirect, 3),
			chat("d2", models.ChatDirect, 2),
			chat("d3", models.ChatDirect, 1),
			chat("ai", models.ChatAIAssistant, 4),
		},
	}
	s := New(src, Options{})
	events := record(s)

	up := s.CheckForNewMessages(context.Background())

	var got []NewMessage
	updates := 0
	for _, r := range *events {
		switch r.event {
		case EventNewMessage:
			got = append(got, r.payload.(NewMessage))
		case EventPollingUpdate:
			updates++
		}
	}
	if updates != 1 {
		t.Fatalf("expected one polling_update, got %d", updates)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 new_message events, got %+v", got)
	}
	if got[0].ChatID != "d1" || got[0].NewMessagesCount != 2 || got[0].UnreadCount != 3 || got[0].ChatName != "name-d1" {
		t.Errorf("unexpected d1 event: %+v", got[0])
	}
	if got[1].ChatID != "d3" || got[1].NewMessagesCount != 1 {
		t.Errorf("unexpected d3 event: %+v", got[1])
	}
	if !up.HasNewMessages || up.TotalUnreadCount != 10 {
		t.Errorf("unexpected update: %+v", up)
	}
	if last := (*events)[len(*events)-1]; last.event != EventPollingUpdate {
		t.Errorf("polling_update should be emitted last, got %s", last.event)
	}
}

func TestGroupsRequireOptIn(t *testing.T) {
	for _, tc := range []struct {
		name   string
		notify bool
		want   int
	}{
		{"default", false, 0},
		{"opt in", true, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeSource{
				chats: []models.Chat{chat("g", models.ChatGroup, 0)},
				next:  []models.Chat{chat("g", models.ChatGroup, 2)},
			}
			s := New(src, Options{NotifyGroups: tc.notify})
			events := record(s)
			s.CheckForNewMessages(context.Background())
			n := 0
			for _, r := range *events {
				if r.event == EventNewMessage {
					n++
				}
			}
			if n != tc.want {
				t.Errorf("new_message count = %d, want %d", n, tc.want)
			}
		})
	}
}

func TestUpdateEmittedOnRefreshFailure(t *testing.T) {
	src := &fakeSource{
		chats: []models.Chat{chat("d1", models.ChatDirect, 2)},
		err:   errors.New("offline"),
	}
	s := New(src, Options{})
	events := record(s)
	up := s.CheckForNewMessages(context.Background())
	if len(*events) != 1 || (*events)[0].event != EventPollingUpdate {
		t.Fatalf("expected a lone polling_update, got %+v", *events)
	}
	if up.HasNewMessages || up.TotalUnreadCount != 2 {
		t.Errorf("unexpected update: %+v", up)
	}
}

func TestListenerPanicIsContained(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})
	s.AddListener(func(Event, any) { panic("boom") })
	events := record(s)
	s.CheckForNewMessages(context.Background())
	if len(*events) != 1 {
		t.Fatalf("second listener should still run, got %d events", len(*events))
	}
}

func TestRemoveListener(t *testing.T) {
	s := New(&fakeSource{}, Options{})
	var a, b int
	idA := s.AddListener(func(Event, any) { a++ })
	s.AddListener(func(Event, any) { b++ })
	s.RemoveListener(idA)
	s.RemoveListener(idA)
	s.CheckForNewMessages(context.Background())
	if a != 0 || b != 1 {
		t.Errorf("a=%d b=%d", a, b)
	}
}

func TestOverlappingTickSkipped(t *testing.T) {
	src := &fakeSource{block: make(chan struct{}), inside: make(chan struct{}, 1)}
	s := New(src, Options{})
	var updates atomic.Int32
	s.AddListener(func(e Event, _ any) {
		if e == EventPollingUpdate {
			updates.Add(1)
		}
	})

	done := make(chan struct{})
	go func() {
		s.tick(context.Background())
		close(done)
	}()
	<-src.inside
	s.tick(context.Background())
	close(src.block)
	<-done

	if updates.Load() != 1 {
		t.Errorf("expected one completed check, got %d", updates.Load())
	}
	if src.calls != 1 {
		t.Errorf("expected one refresh, got %d", src.calls)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{Interval: 10 * time.Millisecond})
	ticks := make(chan struct{}, 16)
	s.AddListener(func(e Event, _ any) {
		if e == EventPollingUpdate {
			select {
			case ticks <- struct{}{}:
			default:
			}
		}
	})
	s.Start(context.Background())
	s.Start(context.Background())
	if !s.Running() {
		t.Fatal("expected running")
	}
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no poll within 2s")
	}
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Fatal("expected stopped")
	}
}

func TestCronLoopTicks(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{Cron: "* * * * * * *"})
	got := make(chan struct{}, 4)
	s.AddListener(func(e Event, _ any) {
		if e == EventPollingUpdate {
			select {
			case got <- struct{}{}:
			default:
			}
		}
	})
	s.Start(context.Background())
	defer s.Stop()
	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("cron loop never ticked")
	}
}

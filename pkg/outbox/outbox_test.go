package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mawneychat/pkg/models"
	"mawneychat/pkg/remote"
	"mawneychat/pkg/store/kv"
)

func openStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newOutbox(t *testing.T, s *kv.Store, clock *time.Time) *Outbox {
	t.Helper()
	o, err := New(s, Options{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 4 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if clock != nil {
		o.now = func() time.Time { return *clock }
	}
	return o
}

func TestEnqueueIsDurable(t *testing.T) {
	s := openStore(t)
	o := newOutbox(t, s, nil)
	msg := models.Message{ID: "msg_1", ChatID: "c1", Text: "hi"}
	for i := 0; i < 3; i++ {
		if _, err := o.Enqueue(Op{Kind: KindMessageSend, ChatID: "c1", Message: &msg}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	reopened := newOutbox(t, s, nil)
	pending, err := reopened.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending ops, got %d", len(pending))
	}
	for i, op := range pending {
		if op.Seq != uint64(i+1) || op.IdempotencyKey == "" || op.Message == nil || op.Message.Text != "hi" {
			t.Fatalf("unexpected op %d: %+v", i, op)
		}
	}
	next, err := reopened.Enqueue(Op{Kind: KindChatsSync, UserID: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if next.Seq != 4 {
		t.Fatalf("sequence should resume after reopen, got %d", next.Seq)
	}
}

func TestFlushAcksDelivered(t *testing.T) {
	o := newOutbox(t, openStore(t), nil)
	var got []Kind
	o.SetHandler(func(_ context.Context, op Op) error {
		got = append(got, op.Kind)
		return nil
	})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindChatsSync, UserID: "u1"})

	n, err := o.Flush(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Flush = %d, %v", n, err)
	}
	if len(got) != 2 || got[0] != KindMessagesSync || got[1] != KindChatsSync {
		t.Fatalf("delivery order: %v", got)
	}
	if pending, _ := o.Pending(); len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d", len(pending))
	}
}

func TestFlushWithoutHandlerKeepsOps(t *testing.T) {
	o := newOutbox(t, openStore(t), nil)
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	if n, err := o.Flush(context.Background()); n != 0 || err != nil {
		t.Fatalf("Flush = %d, %v", n, err)
	}
	if pending, _ := o.Pending(); len(pending) != 1 {
		t.Fatalf("expected op to stay pending")
	}
}

func TestRetryBackoffAndPark(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o := newOutbox(t, openStore(t), &clock)
	attempts := 0
	o.SetHandler(func(context.Context, Op) error {
		attempts++
		return &remote.APIError{Status: 503}
	})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	ctx := context.Background()

	o.Flush(ctx)
	if attempts != 1 {
		t.Fatalf("attempts = %d", attempts)
	}
	// still backing off
	o.Flush(ctx)
	if attempts != 1 {
		t.Fatalf("op retried before backoff elapsed")
	}
	clock = clock.Add(time.Second)
	o.Flush(ctx)
	if attempts != 2 {
		t.Fatalf("attempts = %d after first backoff", attempts)
	}
	clock = clock.Add(2 * time.Second)
	o.Flush(ctx)
	if attempts != 3 {
		t.Fatalf("attempts = %d after second backoff", attempts)
	}
	failed, _ := o.Failed()
	if len(failed) != 1 || failed[0].Attempts != 3 || failed[0].Error == "" {
		t.Fatalf("expected parked op, got %+v", failed)
	}
	clock = clock.Add(time.Hour)
	o.Flush(ctx)
	if attempts != 3 {
		t.Fatalf("parked op must not be retried")
	}
}

func TestPermanentErrorParksImmediately(t *testing.T) {
	o := newOutbox(t, openStore(t), nil)
	o.SetHandler(func(context.Context, Op) error {
		return &remote.APIError{Status: 400, Message: "bad"}
	})
	o.Enqueue(Op{Kind: KindChatsSync, UserID: "u1"})
	o.Flush(context.Background())
	if failed, _ := o.Failed(); len(failed) != 1 {
		t.Fatalf("expected op parked after 400")
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	o := newOutbox(t, openStore(t), nil)
	o.SetHandler(func(context.Context, Op) error { panic("boom") })
	o.Enqueue(Op{Kind: KindChatsSync, UserID: "u1"})
	if _, err := o.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if failed, _ := o.Failed(); len(failed) != 1 {
		t.Fatalf("panicking op should be parked")
	}
}

func TestFailedChatBlocksLaterOps(t *testing.T) {
	o := newOutbox(t, openStore(t), nil)
	var delivered []uint64
	o.SetHandler(func(_ context.Context, op Op) error {
		if op.Seq == 1 {
			return errors.New("network down")
		}
		delivered = append(delivered, op.Seq)
		return nil
	})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c2"})
	o.Flush(context.Background())
	if len(delivered) != 1 || delivered[0] != 3 {
		t.Fatalf("delivered = %v, want [3]", delivered)
	}
}

func TestBackingOffOpHoldsItsChatAcrossPasses(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o := newOutbox(t, openStore(t), &clock)
	down := true
	var delivered []uint64
	o.SetHandler(func(_ context.Context, op Op) error {
		if op.Seq == 1 && down {
			return errors.New("network down")
		}
		delivered = append(delivered, op.Seq)
		return nil
	})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c2"})
	ctx := context.Background()

	o.Flush(ctx)
	o.Flush(ctx)
	if len(delivered) != 1 || delivered[0] != 3 {
		t.Fatalf("delivered = %v, want [3] while seq 1 backs off", delivered)
	}
	ready, err := o.DequeueReady(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 0 {
		t.Fatalf("DequeueReady = %+v, want nothing for c1 during backoff", ready)
	}

	down = false
	clock = clock.Add(time.Second)
	o.Flush(ctx)
	if len(delivered) != 3 || delivered[1] != 1 || delivered[2] != 2 {
		t.Fatalf("delivered = %v, want [3 1 2]", delivered)
	}
}

func TestDropChat(t *testing.T) {
	o := newOutbox(t, openStore(t), nil)
	o.Enqueue(Op{Kind: KindMessageSend, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindMessagesClear, ChatID: "c1"})
	o.Enqueue(Op{Kind: KindMessagesSync, ChatID: "c2"})
	n, err := o.DropChat("c1")
	if err != nil || n != 2 {
		t.Fatalf("DropChat = %d, %v", n, err)
	}
	pending, _ := o.Pending()
	if len(pending) != 2 || pending[0].Kind != KindMessagesClear || pending[1].ChatID != "c2" {
		t.Fatalf("unexpected remaining ops: %+v", pending)
	}
}

func TestBackoffCaps(t *testing.T) {
	o := newOutbox(t, openStore(t), nil)
	cases := map[int]time.Duration{0: time.Second, 1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 9: 4 * time.Second}
	for attempts, want := range cases {
		if got := o.Backoff(attempts); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestStartDeliversOnKick(t *testing.T) {
	s := openStore(t)
	o, err := New(s, Options{FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	done := make(chan struct{})
	o.SetHandler(func(context.Context, Op) error {
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-done:
		default:
			close(done)
		}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	o.Start(ctx)
	defer o.Stop()

	o.Enqueue(Op{Kind: KindChatsSync, UserID: "u1"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("op not delivered after kick")
	}
}

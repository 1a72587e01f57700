package assistant

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"mawneychat/internal/fakeapi"
	"mawneychat/pkg/remote"
	"mawneychat/pkg/store/kv"
)

func setup(t *testing.T) (*Service, *fakeapi.Server, *kv.Store) {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	store, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	api := remote.New(remote.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	return New(api, store), srv, store
}

func TestSessionLifecycle(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "alice", "  Rates outlook ")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Name != "Rates outlook" || sess.ID == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if err := svc.AppendConversation(ctx, sess.ID, "Where are rates going?", "Sideways."); err != nil {
		t.Fatalf("AppendConversation: %v", err)
	}
	convs, err := svc.Conversations(ctx, sess.ID)
	if err != nil || len(convs) != 1 || convs[0].UserMessage != "Where are rates going?" {
		t.Fatalf("Conversations: %+v %v", convs, err)
	}
	list, stale, err := svc.Sessions(ctx, "alice")
	if err != nil || stale || len(list) != 1 {
		t.Fatalf("Sessions: %+v stale=%v err=%v", list, stale, err)
	}
	if err := svc.DeleteSession(ctx, "alice", sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := svc.DeleteSession(ctx, "alice", sess.ID); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if got := svc.cached("alice"); len(got) != 0 {
		t.Fatalf("cache still holds %+v", got)
	}
}

func TestSessionsFallBackToCache(t *testing.T) {
	svc, srv, _ := setup(t)
	ctx := context.Background()
	if _, err := svc.CreateSession(ctx, "alice", "Equities"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, _, err := svc.Sessions(ctx, "alice"); err != nil {
		t.Fatalf("Sessions: %v", err)
	}

	srv.Fail(http.StatusServiceUnavailable)
	list, stale, err := svc.Sessions(ctx, "alice")
	if err != nil {
		t.Fatalf("expected cached list, got %v", err)
	}
	if !stale || len(list) != 1 || list[0].Name != "Equities" {
		t.Fatalf("unexpected offline list: %+v stale=%v", list, stale)
	}

	if _, _, err := svc.Sessions(ctx, "bob"); err == nil {
		t.Fatal("expected error for a user with no cache")
	}
}

func TestValidation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	if _, err := svc.CreateSession(ctx, "alice", "   "); !errors.Is(err, ErrEmptySessionName) {
		t.Errorf("empty name: got %v", err)
	}
	if err := svc.AppendConversation(ctx, "session_1", "", "answer"); !errors.Is(err, ErrEmptyExchange) {
		t.Errorf("empty question: got %v", err)
	}
}

func TestWithoutRemote(t *testing.T) {
	store, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	defer store.Close()
	svc := New(nil, store)
	if _, err := svc.CreateSession(context.Background(), "alice", "x"); !errors.Is(err, remote.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	list, stale, err := svc.Sessions(context.Background(), "alice")
	if err != nil || !stale || len(list) != 0 {
		t.Errorf("unexpected: %v %v %v", list, stale, err)
	}
}

package remote

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"mawneychat/internal/fakeapi"
	"mawneychat/pkg/models"
)

func newTestClient(t *testing.T, srv *fakeapi.Server, secret string) *Client {
	t.Helper()
	return New(Options{BaseURL: srv.URL + "/", Timeout: 2 * time.Second, TokenSecret: secret})
}

func TestChatsRoundTrip(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	chats := []models.Chat{{ID: "direct_a_b", Name: "A & B", Type: models.ChatDirect, Participants: []string{"a", "b"}}}
	if err := c.PushChats(ctx, "a@example.com", chats); err != nil {
		t.Fatalf("PushChats: %v", err)
	}
	got, err := c.FetchChats(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("FetchChats: %v", err)
	}
	if len(got) != 1 || got[0].ID != "direct_a_b" || len(got[0].Participants) != 2 {
		t.Fatalf("unexpected chats: %+v", got)
	}
	none, err := c.FetchChats(ctx, "nobody@example.com")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %v %v", none, err)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := []models.Message{{ID: "msg_1", ChatID: "c1", SenderID: "a", Text: "hi", Type: models.MessageText, Timestamp: ts, ReadBy: []string{}}}
	if err := c.PushMessages(ctx, "c1", msgs); err != nil {
		t.Fatalf("PushMessages: %v", err)
	}
	got, err := c.FetchMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hi" || !got[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if err := c.PushMessages(ctx, "c1", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if left := srv.Messages("c1"); len(left) != 0 {
		t.Fatalf("expected cleared messages, got %d", len(left))
	}
}

func TestErrorResponses(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		srv.Fail(http.StatusServiceUnavailable)
		defer srv.Fail(0)
		_, err := c.FetchChats(ctx, "a@example.com")
		if !IsStatus(err, http.StatusServiceUnavailable) {
			t.Fatalf("expected 503 APIError, got %v", err)
		}
		if !Temporary(err) {
			t.Fatalf("503 should be temporary")
		}
	})

	t.Run("success false", func(t *testing.T) {
		srv.Unsuccessful(true)
		defer srv.Unsuccessful(false)
		err := c.PushChats(ctx, "a@example.com", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "rejected" {
			t.Fatalf("expected rejected APIError, got %v", err)
		}
	})

	t.Run("bad request is permanent", func(t *testing.T) {
		_, err := c.FetchMessages(ctx, "")
		if !IsStatus(err, http.StatusBadRequest) {
			t.Fatalf("expected 400, got %v", err)
		}
		if Temporary(err) {
			t.Fatalf("400 should not be temporary")
		}
	})

	t.Run("not configured", func(t *testing.T) {
		empty := New(Options{})
		if _, err := empty.FetchChats(ctx, "a"); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
	})
}

func TestBearerToken(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	c := newTestClient(t, srv, "s3cret")
	c.SetAccount("a@example.com")

	if _, err := c.FetchChats(context.Background(), "a@example.com"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}
	auth := srv.LastAuthorization()
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("missing bearer token: %q", auth)
	}
	claims, err := NewSigner("s3cret", time.Minute).Verify(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "a@example.com" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestSignerReusesToken(t *testing.T) {
	s := NewSigner("k", time.Hour)
	a, err := s.Token("x@example.com")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Token("x@example.com")
	if a != b {
		t.Fatalf("expected cached token")
	}
	c, _ := s.Token("y@example.com")
	if c == a {
		t.Fatalf("expected a new token for another subject")
	}
}

func TestSessions(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	id, err := c.CreateSession(ctx, "Markets")
	if err != nil || id == "" {
		t.Fatalf("CreateSession: %q %v", id, err)
	}
	if err := c.AppendConversation(ctx, id, "q", "a"); err != nil {
		t.Fatalf("AppendConversation: %v", err)
	}
	convs, err := c.Conversations(ctx, id)
	if err != nil || len(convs) != 1 || convs[0].AIResponse != "a" {
		t.Fatalf("Conversations: %+v %v", convs, err)
	}
	list, err := c.ListSessions(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "Markets" {
		t.Fatalf("ListSessions: %+v %v", list, err)
	}
	if err := c.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := c.DeleteSession(ctx, id); !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404 on second delete, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	c := newTestClient(t, srv, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchChats(ctx, "a"); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

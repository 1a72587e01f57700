package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"

	"mawneychat/pkg/chat"
	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/polling"
	"mawneychat/pkg/repository"
	"mawneychat/pkg/router"
	"mawneychat/pkg/store/kv"
	"mawneychat/pkg/users"
)

var people = []models.User{
	{ID: "alice", Name: "Alice", Email: "alice@example.com", Password: "wonderland"},
	{ID: "bob", Name: "Bob", Email: "bob@example.com", Password: "builder"},
}

func newHandler(t *testing.T, signedIn bool) (fasthttp.RequestHandler, *chat.Store) {
	t.Helper()
	s, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ob, err := outbox.New(s, outbox.Options{})
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	dir := users.New(people, s)
	st := chat.New(repository.New(repository.NewLocal(s), nil), ob, dir, nil, chat.Options{})
	t.Cleanup(st.Close)
	if signedIn {
		u, _ := dir.Get("alice")
		if err := st.Initialize(context.Background(), &u); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
	}
	r := router.New()
	New(st, polling.New(st, polling.Options{}), dir, nil, ob, signIn{st, dir}).Register(r)
	return r.Handler(), st
}

type signIn struct {
	st  *chat.Store
	dir *users.Directory
}

func (s signIn) SignIn(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.dir.Authenticate(email, password)
	if err != nil {
		return models.User{}, err
	}
	return u, s.st.Initialize(ctx, &u)
}

func do(t *testing.T, h fasthttp.RequestHandler, method, path, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != "" {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBodyString(body)
	}
	h(&ctx)
	out := map[string]json.RawMessage{}
	if b := ctx.Response.Body(); len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, b, err)
		}
	}
	return ctx.Response.StatusCode(), out
}

func TestDirectChatFlow(t *testing.T) {
	h, _ := newHandler(t, true)

	status, body := do(t, h, "POST", "/v1/chats/direct", `{"userId":"bob"}`)
	if status != 200 {
		t.Fatalf("create direct: %d %s", status, body["error"])
	}
	var c models.Chat
	if err := json.Unmarshal(body["chat"], &c); err != nil {
		t.Fatal(err)
	}
	if c.Type != models.ChatDirect || c.Name != "Bob" {
		t.Fatalf("unexpected chat %+v", c)
	}

	status, body = do(t, h, "POST", "/v1/chats/"+c.ID+"/messages", `{"text":"hello bob"}`)
	if status != 201 {
		t.Fatalf("send: %d %s", status, body["error"])
	}

	status, body = do(t, h, "GET", "/v1/chats/"+c.ID+"/messages?limit=1", "")
	if status != 200 {
		t.Fatalf("messages: %d", status)
	}
	var msgs []models.Message
	if err := json.Unmarshal(body["messages"], &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello bob" {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	status, body = do(t, h, "GET", "/v1/chats", "")
	if status != 200 || !strings.Contains(string(body["chats"]), c.ID) {
		t.Fatalf("chat list missing %s: %d %s", c.ID, status, body["chats"])
	}

	status, body = do(t, h, "GET", "/v1/outbox", "")
	if status != 200 {
		t.Fatalf("outbox: %d", status)
	}
}

func TestErrorMapping(t *testing.T) {
	h, _ := newHandler(t, true)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"empty message", "POST", "/v1/chats/ai_assistant_alice/messages", `{"text":"  "}`, 400},
		{"bad type", "POST", "/v1/chats/ai_assistant_alice/messages", `{"text":"x","type":"video"}`, 400},
		{"unknown chat", "POST", "/v1/chats/nope/messages", `{"text":"x"}`, 404},
		{"unknown chat messages", "GET", "/v1/chats/nope/messages", "", 404},
		{"self direct", "POST", "/v1/chats/direct", `{"userId":"alice"}`, 400},
		{"unknown user", "POST", "/v1/chats/direct", `{"userId":"zed"}`, 400},
		{"empty group", "POST", "/v1/chats/group", `{"name":"","participants":["bob"]}`, 400},
		{"malformed", "POST", "/v1/chats/group", `{`, 400},
		{"bad limit", "GET", "/v1/chats/ai_assistant_alice/messages?limit=x", "", 400},
		{"mark unknown", "POST", "/v1/chats/nope/read", "", 404},
		{"assistant disabled", "GET", "/v1/assistant/sessions", "", 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, h, tt.method, tt.path, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%s)", status, tt.status, body["error"])
			}
			if _, ok := body["error"]; !ok {
				t.Errorf("missing error field")
			}
		})
	}
}

func TestSignedOut(t *testing.T) {
	h, _ := newHandler(t, false)
	for _, path := range []string{"/v1/chats", "/v1/unread", "/v1/me"} {
		if status, _ := do(t, h, "GET", path, ""); status != 401 {
			t.Errorf("%s: status %d, want 401", path, status)
		}
	}
}

func TestLogin(t *testing.T) {
	h, st := newHandler(t, false)
	if status, _ := do(t, h, "POST", "/v1/login", `{"email":"alice@example.com","password":"nope"}`); status != 401 {
		t.Fatalf("bad password: status %d, want 401", status)
	}
	status, body := do(t, h, "POST", "/v1/login", `{"email":"ALICE@example.com","password":"wonderland"}`)
	if status != 200 {
		t.Fatalf("login: %d %s", status, body["error"])
	}
	if u, ok := st.CurrentUser(); !ok || u.ID != "alice" {
		t.Fatalf("store not signed in: %+v", u)
	}
	status, body = do(t, h, "GET", "/v1/users", "")
	if status != 200 || strings.Contains(string(body["users"]), `"alice"`) {
		t.Fatalf("users should exclude self: %s", body["users"])
	}
}

func TestLeaveDeleteAndUnread(t *testing.T) {
	h, st := newHandler(t, true)
	status, body := do(t, h, "POST", "/v1/chats/group", `{"name":"Ops","participants":["bob"]}`)
	if status != 201 {
		t.Fatalf("create group: %d %s", status, body["error"])
	}
	var g models.Chat
	if err := json.Unmarshal(body["chat"], &g); err != nil {
		t.Fatal(err)
	}

	status, body = do(t, h, "GET", "/v1/unread", "")
	if status != 200 || string(body["totalUnreadCount"]) != "0" {
		t.Fatalf("unread: %d %s", status, body["totalUnreadCount"])
	}

	status, body = do(t, h, "POST", "/v1/chats/"+g.ID+"/leave", "")
	if status != 200 || string(body["left"]) != "true" {
		t.Fatalf("leave: %d %s", status, body["left"])
	}
	if _, ok := st.Chat(g.ID); ok {
		t.Fatal("chat still visible after leave")
	}
	status, body = do(t, h, "DELETE", "/v1/chats/"+g.ID, "")
	if status != 200 || string(body["deleted"]) != "false" {
		t.Fatalf("delete of a left chat: %d %s", status, body["deleted"])
	}
}

func TestPoll(t *testing.T) {
	h, _ := newHandler(t, true)
	status, body := do(t, h, "POST", "/v1/poll", "")
	if status != 200 {
		t.Fatalf("poll: %d", status)
	}
	var up polling.Update
	if err := json.Unmarshal(body["update"], &up); err != nil {
		t.Fatal(err)
	}
	if up.HasNewMessages || up.Timestamp.IsZero() {
		t.Errorf("unexpected update %+v", up)
	}
}

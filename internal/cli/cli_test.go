package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mawneychat/pkg/models"
	"mawneychat/pkg/store/kv"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func fakeDaemon(t *testing.T, reqs *[]recorded) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.RequestURI()}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		*reqs = append(*reqs, rec)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/chats" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"chats":[{"id":"direct_u1_u2","name":"Bob","type":"direct","participants":["u1","u2"],"unreadCount":2}]}`))
		case r.URL.Path == "/v1/chats/direct_u1_u2/messages" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"message":{"id":"msg_1_abc","chatId":"direct_u1_u2","senderId":"u1","text":"hi","type":"text"}}`))
		case r.URL.Path == "/v1/chats/missing/read":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"chat not found"}`))
		case r.URL.Path == "/v1/unread":
			_, _ = w.Write([]byte(`{"totalUnreadCount":3,"chats":{"b":1,"a":2}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatsTableAndJSON(t *testing.T) {
	var reqs []recorded
	srv := fakeDaemon(t, &reqs)

	out, err := run(t, "--addr", srv.URL, "chats")
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if !strings.Contains(out, "direct_u1_u2") || !strings.Contains(out, "UNREAD") {
		t.Fatalf("unexpected table output:\n%s", out)
	}

	out, err = run(t, "--addr", srv.URL, "-o", "json", "chats")
	if err != nil {
		t.Fatalf("chats json: %v", err)
	}
	var got struct {
		Chats []models.Chat `json:"chats"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if len(got.Chats) != 1 || got.Chats[0].UnreadCount != 2 {
		t.Fatalf("unexpected chats: %+v", got.Chats)
	}

	out, err = run(t, "--addr", srv.URL, "-o", "yaml", "chats")
	if err != nil {
		t.Fatalf("chats yaml: %v", err)
	}
	if !strings.Contains(out, "unreadCount: 2") {
		t.Fatalf("yaml output should use json field names:\n%s", out)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	if _, err := run(t, "-o", "xml", "chats"); err == nil {
		t.Fatal("expected an error for an unknown output format")
	}
}

func TestSendWithAttachment(t *testing.T) {
	var reqs []recorded
	srv := fakeDaemon(t, &reqs)

	file := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(file, []byte("\x89PNG\r\n\x1a\n0000"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "--addr", srv.URL, "send", "direct_u1_u2", "hi", "--attachment", file)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, "msg_1_abc") {
		t.Fatalf("unexpected output: %s", out)
	}
	last := reqs[len(reqs)-1]
	if last.method != http.MethodPost || last.body["text"] != "hi" {
		t.Fatalf("unexpected request: %+v", last)
	}
	if last.body["type"] != string(models.MessageImage) {
		t.Errorf("type = %v, want image", last.body["type"])
	}
	if uri, _ := last.body["attachment"].(string); !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("attachment = %.40q", uri)
	}
}

func TestDaemonErrorMessage(t *testing.T) {
	var reqs []recorded
	srv := fakeDaemon(t, &reqs)
	_, err := run(t, "--addr", srv.URL, "read", "missing")
	if err == nil || !strings.Contains(err.Error(), "chat not found") || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v", err)
	}
}

func TestUnreadSorted(t *testing.T) {
	var reqs []recorded
	srv := fakeDaemon(t, &reqs)
	out, err := run(t, "--addr", srv.URL, "unread")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Index(out, "a ") > strings.Index(out, "b ") {
		t.Fatalf("rows not sorted:\n%s", out)
	}
	if !strings.Contains(out, "total") {
		t.Fatalf("missing total row:\n%s", out)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	var reqs []recorded
	srv := fakeDaemon(t, &reqs)
	if _, err := run(t, "--addr", srv.URL, "delete", "direct_u1_u2"); err == nil {
		t.Fatal("expected delete without --yes to fail")
	}
	if len(reqs) != 0 {
		t.Fatalf("delete without --yes reached the daemon: %+v", reqs)
	}
}

func TestDataURI(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
		prefix  string
		typ     models.MessageType
	}{
		{"notes.txt", "hello", "data:text/plain;base64,", models.MessageDocument},
		{"photo.jpg", "\xff\xd8\xff", "data:image/jpeg;base64,", models.MessageImage},
		{"blob", "%PDF-1.4", "data:application/pdf;base64,", models.MessageDocument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := filepath.Join(dir, tc.name)
			if err := os.WriteFile(p, []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			uri, typ, err := dataURI(p)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(uri, tc.prefix) {
				t.Errorf("uri = %.50q, want prefix %q", uri, tc.prefix)
			}
			if typ != tc.typ {
				t.Errorf("type = %q, want %q", typ, tc.typ)
			}
		})
	}
	if _, _, err := dataURI(filepath.Join(dir, "absent")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestInspectStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	st, err := kv.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{
		"mawney_chats_u1", "mawney_chats_u2",
		"mawney_messages_u1",
		"shared_messages_direct_u1_u2", "shared_messages_group_1_x",
		"mawney_shared_group_chats",
		"outbox:00000000000000000001",
		"u1_avatar",
	} {
		if err := st.SaveKey(k, []byte("[]")); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	inv, err := inspectStore(dir)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if inv.Total != 8 {
		t.Fatalf("total = %d, want 8", inv.Total)
	}
	got := map[string]KindStats{}
	for _, k := range inv.Kinds {
		got[string(k.Kind)] = k
	}
	if s := got["user_chats"]; s.Keys != 2 || s.Owners != 2 {
		t.Errorf("user_chats = %+v", s)
	}
	if s := got["shared_messages"]; s.Keys != 2 {
		t.Errorf("shared_messages = %+v", s)
	}
	if s := got["shared_group_chats"]; s.Keys != 1 || s.Owners != 0 {
		t.Errorf("shared_group_chats = %+v", s)
	}
	if s := got["avatar"]; s.Keys != 1 || s.Bytes == 0 {
		t.Errorf("avatar = %+v", s)
	}

	out, err := run(t, "inspect", dir)
	if err != nil {
		t.Fatalf("inspect command: %v", err)
	}
	if !strings.Contains(out, "user_chats") || !strings.Contains(out, "total") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestIntegral(t *testing.T) {
	in := map[string]any{"n": 2.0, "f": 1.5, "list": []any{3.0, "x"}}
	out := integral(in).(map[string]any)
	if _, ok := out["n"].(int64); !ok {
		t.Errorf("n = %T, want int64", out["n"])
	}
	if out["f"] != 1.5 {
		t.Errorf("f = %v", out["f"])
	}
	if _, ok := out["list"].([]any)[0].(int64); !ok {
		t.Errorf("list[0] = %T", out["list"].([]any)[0])
	}
}

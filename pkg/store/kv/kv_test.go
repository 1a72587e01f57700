package kv

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetSaveDelete(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetKey("missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SaveKey("k", []byte("v")); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	got, err := s.GetKey("k")
	if err != nil || got != "v" {
		t.Fatalf("GetKey = %q, %v", got, err)
	}
	if err := s.DeleteKey("k"); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if _, err := s.GetKey("k"); !IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestJSONRoundTripAndMissing(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer s.Close()

	var out []string
	found, err := s.GetJSON("list", &out)
	if err != nil || found {
		t.Fatalf("missing key: found=%v err=%v", found, err)
	}
	if err := s.SaveJSON("list", []string{"a", "b"}); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	found, err = s.GetJSON("list", &out)
	if err != nil || !found || len(out) != 2 {
		t.Fatalf("GetJSON: found=%v err=%v out=%v", found, err, out)
	}
	if err := s.SaveKey("bad", []byte("{not json")); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if found, err := s.GetJSON("bad", &out); !found || err == nil {
		t.Fatalf("expected decode error, found=%v err=%v", found, err)
	}
}

func TestIterateRespectsPrefix(t *testing.T) {
	s := openTestStore(t)
	for _, k := range []string{"outbox:2", "outbox:1", "outboy", "mawney_chats_u1"} {
		if err := s.SaveKey(k, []byte("x")); err != nil {
			t.Fatalf("SaveKey(%s): %v", k, err)
		}
	}
	keys, err := s.ListKeys("outbox:")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "outbox:1" || keys[1] != "outbox:2" {
		t.Fatalf("keys = %v", keys)
	}

	stop := errors.New("stop")
	n := 0
	err = s.Iterate("outbox:", func(_, _ []byte) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("early stop: n=%d err=%v", n, err)
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveKey("keep", []byte("1")); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	err := s.Update(func(b *Batch) error {
		if err := b.Set("new", []byte("2")); err != nil {
			return err
		}
		if err := b.Delete("keep"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetKey("new"); !IsNotFound(err) {
		t.Fatalf("aborted batch leaked a write")
	}
	if err := s.Update(func(b *Batch) error {
		if err := b.SetJSON("new", map[string]int{"n": 2}); err != nil {
			return err
		}
		return b.Delete("keep")
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v, _ := s.GetKey("new"); v != `{"n":2}` {
		t.Fatalf("new = %q", v)
	}
	if _, err := s.GetKey("keep"); !IsNotFound(err) {
		t.Fatalf("delete in batch not applied")
	}
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Ready() {
		t.Fatalf("closed store reports ready")
	}
	if err := s.SaveKey("k", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

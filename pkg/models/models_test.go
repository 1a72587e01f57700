package models

import (
	"testing"
	"time"
)

func TestMessageMarkReadIdempotent(t *testing.T) {
	m := Message{ID: "m1", SenderID: "a", ReadReceipts: map[string]*time.Time{"a": nil, "b": nil}}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !m.MarkRead("b", ts) {
		t.Fatalf("first MarkRead should report a change")
	}
	if m.MarkRead("b", ts.Add(time.Hour)) {
		t.Fatalf("second MarkRead should be a no-op")
	}
	if len(m.ReadBy) != 1 || m.ReadBy[0] != "b" {
		t.Fatalf("readBy = %v", m.ReadBy)
	}
	if got := m.ReadReceipts["b"]; got == nil || !got.Equal(ts) {
		t.Fatalf("receipt = %v", got)
	}
}

func TestMessageIsUnreadFor(t *testing.T) {
	m := Message{SenderID: "a", ReadBy: []string{"c"}}
	tests := []struct {
		user string
		want bool
	}{
		{"a", false},
		{"b", true},
		{"c", false},
	}
	for _, tt := range tests {
		if got := m.IsUnreadFor(tt.user); got != tt.want {
			t.Errorf("IsUnreadFor(%s) = %v, want %v", tt.user, got, tt.want)
		}
	}
}

func TestMergeReceiptsKeepsEarliest(t *testing.T) {
	early := time.Unix(100, 0)
	late := time.Unix(200, 0)
	a := Message{ReadBy: []string{"x"}, ReadReceipts: map[string]*time.Time{"x": &late, "y": nil}}
	b := Message{ReadBy: []string{"x", "y"}, ReadReceipts: map[string]*time.Time{"x": &early, "y": &late}}
	a.MergeReceipts(b)
	if len(a.ReadBy) != 2 {
		t.Fatalf("readBy = %v", a.ReadBy)
	}
	if !a.ReadReceipts["x"].Equal(early) {
		t.Errorf("x receipt = %v", a.ReadReceipts["x"])
	}
	if a.ReadReceipts["y"] == nil || !a.ReadReceipts["y"].Equal(late) {
		t.Errorf("y receipt = %v", a.ReadReceipts["y"])
	}
}

func TestChatEffectiveTime(t *testing.T) {
	created := time.Unix(10, 0)
	c := Chat{CreatedAt: created}
	if !c.EffectiveTime().Equal(created) {
		t.Fatalf("expected createdAt fallback")
	}
	c.LastMessage = &LastMessage{Timestamp: time.Unix(20, 0)}
	if c.EffectiveTime().Unix() != 20 {
		t.Fatalf("expected lastMessage timestamp")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	c := Chat{Participants: []string{"a", "b"}, LastMessage: &LastMessage{Text: "hi"}}
	cp := c.Clone()
	cp.Participants[0] = "z"
	cp.LastMessage.Text = "changed"
	if c.Participants[0] != "a" || c.LastMessage.Text != "hi" {
		t.Fatalf("clone aliased original: %+v", c)
	}
	att := "data"
	m := Message{ReadBy: []string{"a"}, Attachment: &att}
	mc := m.Clone()
	mc.ReadBy[0] = "z"
	*mc.Attachment = "other"
	if m.ReadBy[0] != "a" || *m.Attachment != "data" {
		t.Fatalf("message clone aliased original")
	}
}

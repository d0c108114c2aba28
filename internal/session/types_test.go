package session

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestDefaultName(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	name := DefaultName("a1b2c3d4-e5f6-7890-abcd-ef1234567890", created)

	if name != "session-2026-03-14-a1b2c3d4" {
		t.Errorf("unexpected default name: %s", name)
	}

	pattern := regexp.MustCompile(`^session-\d{4}-\d{2}-\d{2}-[0-9a-f]{8}$`)
	if !pattern.MatchString(name) {
		t.Errorf("name %q does not match session-<date>-<idfragment> pattern", name)
	}
}

func TestDefaultName_ShortID(t *testing.T) {
	created := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	name := DefaultName("abc", created)
	if name != "session-2026-03-14-abc" {
		t.Errorf("unexpected name for short id: %s", name)
	}
}

func TestAppendMessage_TruncatesAssistantContent(t *testing.T) {
	s := &Session{ID: "s-1"}

	long := strings.Repeat("x", DefaultMaxMessageLength+100)
	msg := s.AppendMessage(MessageAssistant, long)

	if len(msg.Content) != DefaultMaxMessageLength {
		t.Errorf("expected content truncated to %d, got %d", DefaultMaxMessageLength, len(msg.Content))
	}
	if !strings.HasSuffix(msg.Content, "...") {
		t.Error("truncated content should end with ellipsis")
	}
}

func TestAppendMessage_DoesNotTruncateOtherTypes(t *testing.T) {
	s := &Session{ID: "s-1"}

	long := strings.Repeat("x", DefaultMaxMessageLength+100)
	msg := s.AppendMessage(MessageError, long)

	if len(msg.Content) != len(long) {
		t.Errorf("non-assistant content should not be truncated, got %d chars", len(msg.Content))
	}
}

func TestAppendMessageLimit_CustomBound(t *testing.T) {
	s := &Session{ID: "s-1"}

	msg := s.AppendMessageLimit(MessageAssistant, strings.Repeat("x", 100), 20)
	if len(msg.Content) != 20 {
		t.Errorf("expected content truncated to 20, got %d", len(msg.Content))
	}

	// A non-positive bound falls back to the default.
	msg = s.AppendMessageLimit(MessageAssistant, strings.Repeat("x", DefaultMaxMessageLength+100), 0)
	if len(msg.Content) != DefaultMaxMessageLength {
		t.Errorf("expected the default bound, got %d", len(msg.Content))
	}
}

func TestRecentMessages(t *testing.T) {
	s := &Session{ID: "s-1"}
	for i := 0; i < 5; i++ {
		s.AppendMessage(MessageInfo, fmt.Sprintf("entry-%d", i))
	}

	recent := s.RecentMessages(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Content != "entry-3" || recent[1].Content != "entry-4" {
		t.Errorf("expected the newest entries, got %q %q", recent[0].Content, recent[1].Content)
	}

	// The stored transcript keeps the full history.
	if len(s.Messages) != 5 {
		t.Errorf("stored transcript must not be trimmed, got %d entries", len(s.Messages))
	}

	// A non-positive max returns everything, and mutating the result must
	// not reach the stored transcript.
	all := s.RecentMessages(0)
	if len(all) != 5 {
		t.Fatalf("expected the full transcript, got %d entries", len(all))
	}
	all[0].Content = "mutated"
	if s.Messages[0].Content == "mutated" {
		t.Error("RecentMessages must return a copy")
	}
}

func TestAppendMessage_PreservesOrder(t *testing.T) {
	s := &Session{ID: "s-1"}

	s.AppendMessage(MessageInfo, "first")
	s.AppendMessage(MessageAssistant, "second")
	s.AppendMessage(MessageSuccess, "third")

	if len(s.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(s.Messages))
	}
	if s.Messages[0].Content != "first" || s.Messages[1].Content != "second" || s.Messages[2].Content != "third" {
		t.Error("messages out of insertion order")
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	now := time.Now()
	for i := 0; i < 1000; i++ {
		id := newMessageID(now)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate message id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestAddUsage_Monotonic(t *testing.T) {
	s := &Session{ID: "s-1"}

	s.AddUsage(100, 0.02)
	s.AddUsage(-50, -0.01) // ignored
	s.AddUsage(25, 0.01)

	if s.TokensUsed != 125 {
		t.Errorf("expected 125 tokens, got %d", s.TokensUsed)
	}
	if s.Cost != 0.03 {
		t.Errorf("expected cost 0.03, got %f", s.Cost)
	}
}

func TestSetRuntimeSession_WriteOnce(t *testing.T) {
	s := &Session{ID: "s-1"}

	s.SetRuntimeSession("")
	if s.RuntimeSessionID != "" {
		t.Error("empty token should not be recorded")
	}

	s.SetRuntimeSession("rt-first")
	s.SetRuntimeSession("rt-second")

	if s.RuntimeSessionID != "rt-first" {
		t.Errorf("runtime session id should be write-once, got %s", s.RuntimeSessionID)
	}
}

func TestClone_Independent(t *testing.T) {
	s := &Session{ID: "s-1", Status: StatusActive}
	s.AppendMessage(MessageInfo, "original")

	cp := s.Clone()
	cp.Status = StatusPaused
	cp.Messages[0].Content = "mutated"
	cp.AppendMessage(MessageInfo, "extra")

	if s.Status != StatusActive {
		t.Error("mutating the clone's status must not affect the original")
	}
	if s.Messages[0].Content != "original" {
		t.Error("mutating the clone's messages must not affect the original")
	}
	if len(s.Messages) != 1 {
		t.Errorf("appending to the clone must not grow the original, got %d", len(s.Messages))
	}
}

func TestStatusValid(t *testing.T) {
	for _, st := range []Status{StatusActive, StatusPaused, StatusCompleted, StatusError} {
		if !st.Valid() {
			t.Errorf("status %q should be valid", st)
		}
	}
	if Status("deleted").Valid() {
		t.Error("'deleted' is not a visible status value")
	}
}

// Package session defines the session entity, its transcript, and the
// in-memory registry that is the single source of truth for session state.
package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/calebforbes/ensemble/internal/util"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive means a runtime invocation is running or about to run.
	StatusActive Status = "active"
	// StatusPaused means the session's invocation was cancelled and may be
	// resumed with its continuation token.
	StatusPaused Status = "paused"
	// StatusCompleted means the runtime finished successfully or the caller
	// stopped the session.
	StatusCompleted Status = "completed"
	// StatusError means the invocation failed to start, failed to parse, or
	// the runtime reported an error result.
	StatusError Status = "error"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusError:
		return true
	}
	return false
}

// MessageType classifies a transcript entry.
type MessageType string

const (
	MessageAssistant MessageType = "assistant"
	MessageUser      MessageType = "user"
	MessageError     MessageType = "error"
	MessageInfo      MessageType = "info"
	MessageSuccess   MessageType = "success"
	MessageWarning   MessageType = "warning"
)

// DefaultMaxMessageLength bounds the length of assistant transcript entries.
// Longer content is truncated with an ellipsis.
const DefaultMaxMessageLength = 4000

// DefaultMaxDisplayMessages bounds how many transcript entries the display
// surfaces show. The stored transcript is never trimmed.
const DefaultMaxDisplayMessages = 200

// TerminalMessage is one entry in a session's transcript. Entries are
// append-only: never mutated, removed, or reordered once added.
type TerminalMessage struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// messageSeq disambiguates transcript IDs minted within the same millisecond.
var messageSeq atomic.Uint64

// newMessageID returns a monotonic-ish, collision-tolerant transcript entry ID.
func newMessageID(now time.Time) string {
	return fmt.Sprintf("%d-%d", now.UnixMilli(), messageSeq.Add(1))
}

// Session is the central entity: one isolated unit of agent work bound to a
// dedicated branch and working directory.
//
// The JSON tags define the persisted snapshot layout. The live cancellation
// handle is deliberately not part of this struct; it is transient state owned
// by the orchestrator.
type Session struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Branch       string `json:"branch"`
	WorktreePath string `json:"worktreePath"`
	Status       Status `json:"status"`
	Archived     bool   `json:"archived"`

	// Progress is a coarse 0-100 completion signal.
	Progress int `json:"progress"`

	// NeedsIntervention is set when the runtime halted for a reason that
	// requires a human decision (e.g. turn budget exhausted).
	NeedsIntervention bool `json:"needsIntervention"`

	// RuntimeSessionID is the continuation token issued by the external
	// runtime on first invocation. Write-once: its presence is the sole
	// precondition for resumption.
	RuntimeSessionID string `json:"runtimeSessionId,omitempty"`

	TokensUsed int64   `json:"tokensUsed"`
	Cost       float64 `json:"cost"`

	Messages []TerminalMessage `json:"messages"`

	Task        string `json:"task"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewID returns a fresh opaque session identifier.
func NewID() string {
	return uuid.New().String()
}

// DefaultName derives the display label used when the caller supplies none:
// session-<date>-<first 8 chars of id>.
func DefaultName(id string, createdAt time.Time) string {
	frag := id
	if len(frag) > 8 {
		frag = frag[:8]
	}
	return fmt.Sprintf("session-%s-%s", createdAt.Format("2006-01-02"), frag)
}

// Touch refreshes the UpdatedAt timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// AppendMessage adds a transcript entry, truncating assistant content to the
// default length bound, and returns the stored entry.
func (s *Session) AppendMessage(msgType MessageType, content string) TerminalMessage {
	return s.AppendMessageLimit(msgType, content, DefaultMaxMessageLength)
}

// AppendMessageLimit is AppendMessage with an explicit assistant content
// bound. A non-positive maxLen falls back to the default.
func (s *Session) AppendMessageLimit(msgType MessageType, content string, maxLen int) TerminalMessage {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if msgType == MessageAssistant {
		content = util.TruncateString(content, maxLen)
	}

	now := time.Now()
	msg := TerminalMessage{
		ID:        newMessageID(now),
		Type:      msgType,
		Content:   content,
		Timestamp: now,
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = now
	return msg
}

// AddUsage accumulates token and cost counters. Negative deltas are ignored:
// both accumulators are monotonically non-decreasing.
func (s *Session) AddUsage(tokens int64, cost float64) {
	if tokens > 0 {
		s.TokensUsed += tokens
	}
	if cost > 0 {
		s.Cost += cost
	}
}

// SetRuntimeSession records the continuation token on first capture.
// An already-set token is never overwritten.
func (s *Session) SetRuntimeSession(token string) {
	if s.RuntimeSessionID == "" && token != "" {
		s.RuntimeSessionID = token
	}
}

// RecentMessages returns a copy of the last max transcript entries. A
// non-positive max returns the full transcript. The stored transcript is
// unaffected; persistence always keeps the complete history.
func (s *Session) RecentMessages(max int) []TerminalMessage {
	msgs := s.Messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	out := make([]TerminalMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Clone returns a deep copy safe to hand out to callers while the registry
// retains sole ownership of the original.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = make([]TerminalMessage, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

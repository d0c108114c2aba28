// Package event defines the typed events the orchestrator publishes and the
// bus that fans them out. Events decouple the session lifecycle from the
// transport layer: the orchestrator publishes, subscribers observe.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.created", "runtime.message")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session Lifecycle Events
// -----------------------------------------------------------------------------

// SessionCreatedEvent is emitted when a session has been provisioned and
// registered.
type SessionCreatedEvent struct {
	baseEvent
	SessionID    string // Unique identifier for the session
	Name         string // Display label
	Branch       string // Git branch name
	WorktreePath string // Path to the git worktree
	Task         string // Seed instruction text
}

// NewSessionCreatedEvent creates a SessionCreatedEvent.
func NewSessionCreatedEvent(sessionID, name, branch, worktreePath, task string) SessionCreatedEvent {
	return SessionCreatedEvent{
		baseEvent:    newBaseEvent("session.created"),
		SessionID:    sessionID,
		Name:         name,
		Branch:       branch,
		WorktreePath: worktreePath,
		Task:         task,
	}
}

// StatusChangedEvent is emitted on every session status transition.
type StatusChangedEvent struct {
	baseEvent
	SessionID string // Session whose status changed
	Previous  string // Previous status value
	Current   string // New status value
}

// NewStatusChangedEvent creates a StatusChangedEvent.
func NewStatusChangedEvent(sessionID, previous, current string) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBaseEvent("session.status_changed"),
		SessionID: sessionID,
		Previous:  previous,
		Current:   current,
	}
}

// MessageAppendedEvent is emitted when a transcript entry is appended to a
// session.
type MessageAppendedEvent struct {
	baseEvent
	SessionID   string // Session the message belongs to
	MessageID   string // Transcript entry identifier
	MessageType string // assistant|user|error|info|success|warning
	Content     string // Display text (already truncated)
}

// NewMessageAppendedEvent creates a MessageAppendedEvent.
func NewMessageAppendedEvent(sessionID, messageID, messageType, content string) MessageAppendedEvent {
	return MessageAppendedEvent{
		baseEvent:   newBaseEvent("session.message"),
		SessionID:   sessionID,
		MessageID:   messageID,
		MessageType: messageType,
		Content:     content,
	}
}

// SessionCompletedEvent is emitted when a session's runtime invocation
// finishes successfully or the caller stops it.
type SessionCompletedEvent struct {
	baseEvent
	SessionID string  // Session that completed
	Result    string  // Final result text from the runtime, if any
	CostUSD   float64 // Cost of the final invocation
}

// NewSessionCompletedEvent creates a SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID, result string, costUSD float64) SessionCompletedEvent {
	return SessionCompletedEvent{
		baseEvent: newBaseEvent("session.completed"),
		SessionID: sessionID,
		Result:    result,
		CostUSD:   costUSD,
	}
}

// InterventionNeededEvent is emitted when the runtime halts for a reason that
// requires a human decision rather than a true success or failure.
type InterventionNeededEvent struct {
	baseEvent
	SessionID string // Session needing attention
	Reason    string // Human-readable reason, e.g. "Max turns reached"
}

// NewInterventionNeededEvent creates an InterventionNeededEvent.
func NewInterventionNeededEvent(sessionID, reason string) InterventionNeededEvent {
	return InterventionNeededEvent{
		baseEvent: newBaseEvent("session.intervention"),
		SessionID: sessionID,
		Reason:    reason,
	}
}

// SessionErrorEvent is emitted when a session-level failure occurs
// (invocation failure, parse failure, runtime error result).
type SessionErrorEvent struct {
	baseEvent
	SessionID string // Session that failed
	Message   string // Human-readable error description
}

// NewSessionErrorEvent creates a SessionErrorEvent.
func NewSessionErrorEvent(sessionID, message string) SessionErrorEvent {
	return SessionErrorEvent{
		baseEvent: newBaseEvent("session.error"),
		SessionID: sessionID,
		Message:   message,
	}
}

// -----------------------------------------------------------------------------
// Runtime Events
// -----------------------------------------------------------------------------

// RuntimeMessageEvent forwards a normalized runtime message to observers.
type RuntimeMessageEvent struct {
	baseEvent
	SessionID string // Session the invocation belongs to
	Kind      string // system|assistant|user|result
	Subtype   string // e.g. "init", "success", "error_max_turns"
	Content   string // Text content, if any
}

// NewRuntimeMessageEvent creates a RuntimeMessageEvent.
func NewRuntimeMessageEvent(sessionID, kind, subtype, content string) RuntimeMessageEvent {
	return RuntimeMessageEvent{
		baseEvent: newBaseEvent("runtime.message"),
		SessionID: sessionID,
		Kind:      kind,
		Subtype:   subtype,
		Content:   content,
	}
}

// -----------------------------------------------------------------------------
// Worktree Events
// -----------------------------------------------------------------------------

// FileChangedEvent is emitted when files change inside a session's worktree.
type FileChangedEvent struct {
	baseEvent
	SessionID string   // Session owning the worktree
	Paths     []string // Changed paths, relative to the worktree root
}

// NewFileChangedEvent creates a FileChangedEvent.
func NewFileChangedEvent(sessionID string, paths []string) FileChangedEvent {
	return FileChangedEvent{
		baseEvent: newBaseEvent("worktree.file_changed"),
		SessionID: sessionID,
		Paths:     paths,
	}
}

// Package errors provides centralized error definitions and error handling
// utilities for Ensemble. It defines domain-specific error types for the
// session orchestrator, constructors with context wrapping, and
// classification helpers.
//
// # Error Types
//
// The package defines one error type per failure class the orchestrator
// distinguishes:
//
//   - ProvisioningError: worktree/branch creation or access failed
//   - InvocationError: the external agent runtime process failed to execute
//   - ParseError: runtime output could not be normalized
//   - NotFoundError: an operation referenced an unknown session
//   - ResumeStateError: resume attempted without a prior runtime session token
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewProvisioningError("worktree add failed", baseErr).WithBranch("ensemble/fix-auth")
//	err := errors.NewNotFoundError("session", "abc123")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var provErr *errors.ProvisioningError
//	if errors.As(err, &provErr) { ... }
//
//	if errors.IsUserFacing(err) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo Severity = iota
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that a session could not be found.
	ErrSessionNotFound = New("session not found")
	// ErrSessionNotPaused indicates an operation that requires a paused session.
	ErrSessionNotPaused = New("session is not paused")
	// ErrNoRuntimeSession indicates a resume without a prior runtime session token.
	ErrNoRuntimeSession = New("no runtime session to resume")
	// ErrInvocationInFlight indicates a runtime invocation is already running
	// for the session.
	ErrInvocationInFlight = New("invocation already in flight")
	// ErrSnapshotCorrupted indicates that persisted snapshot data is corrupted.
	ErrSnapshotCorrupted = New("snapshot data corrupted")
)

// Worktree-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrWorktreeMissing indicates that a session's worktree no longer exists on disk.
	ErrWorktreeMissing = New("worktree missing from disk")
	// ErrWorktreeExists indicates that a worktree already exists at the target path.
	ErrWorktreeExists = New("worktree already exists")
)

// Runtime-related sentinel errors
var (
	// ErrRuntimeStartFailed indicates the agent runtime process failed to start.
	ErrRuntimeStartFailed = New("runtime failed to start")
	// ErrRuntimeTimeout indicates a batch invocation exceeded its wall-clock timeout.
	ErrRuntimeTimeout = New("runtime invocation timed out")
	// ErrEmptyOutput indicates the runtime produced no parseable output.
	ErrEmptyOutput = New("runtime produced no output")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the message is safe to show to end users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// ProvisioningError
// -----------------------------------------------------------------------------

// ProvisioningError indicates a worktree or branch could not be created,
// removed, or accessed. It is fatal to the requested operation: session
// creation aborts, resume is refused.
type ProvisioningError struct {
	baseError
	Branch string // Branch involved, if known
	Path   string // Worktree path involved, if known
}

// NewProvisioningError creates a ProvisioningError wrapping cause.
func NewProvisioningError(message string, cause error) *ProvisioningError {
	return &ProvisioningError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithBranch attaches the branch name to the error.
func (e *ProvisioningError) WithBranch(branch string) *ProvisioningError {
	e.Branch = branch
	return e
}

// WithPath attaches the worktree path to the error.
func (e *ProvisioningError) WithPath(path string) *ProvisioningError {
	e.Path = path
	return e
}

// Error includes branch/path context when present.
func (e *ProvisioningError) Error() string {
	msg := e.baseError.Error()
	if e.Branch != "" {
		msg = fmt.Sprintf("%s (branch: %s)", msg, e.Branch)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}
	return msg
}

// -----------------------------------------------------------------------------
// InvocationError
// -----------------------------------------------------------------------------

// InvocationError indicates the external agent runtime process or call itself
// failed to execute. The owning session transitions to the error status.
type InvocationError struct {
	baseError
	SessionID string // Orchestrator session the invocation belonged to
}

// NewInvocationError creates an InvocationError wrapping cause.
func NewInvocationError(message string, cause error) *InvocationError {
	return &InvocationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithSession attaches the session ID to the error.
func (e *InvocationError) WithSession(sessionID string) *InvocationError {
	e.SessionID = sessionID
	return e
}

// -----------------------------------------------------------------------------
// ParseError
// -----------------------------------------------------------------------------

// ParseError indicates runtime output could not be normalized into the
// uniform message type (malformed JSON, unexpected payload shape).
type ParseError struct {
	baseError
	Raw string // Offending raw payload, truncated for display
}

// maxRawLen bounds how much raw output a ParseError carries.
const maxRawLen = 200

// NewParseError creates a ParseError carrying the raw payload that failed.
func NewParseError(message string, cause error, raw string) *ParseError {
	if len(raw) > maxRawLen {
		raw = raw[:maxRawLen] + "..."
	}
	return &ParseError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: false,
		},
		Raw: raw,
	}
}

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError indicates an operation referenced an unknown resource.
// The operation is rejected with no state change.
type NotFoundError struct {
	baseError
	Resource string // Resource kind, e.g. "session", "workspace"
	ID       string // Identifier that was not found
}

// NewNotFoundError creates a NotFoundError for the given resource and ID.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not found: %s", resource, id),
			cause:      ErrSessionNotFound,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Resource: resource,
		ID:       id,
	}
}

// -----------------------------------------------------------------------------
// ResumeStateError
// -----------------------------------------------------------------------------

// ResumeStateError indicates a resume was attempted on a session that has no
// runtime session token to continue from. The operation is rejected and the
// session remains paused.
type ResumeStateError struct {
	baseError
	SessionID string
}

// NewResumeStateError creates a ResumeStateError for the given session.
func NewResumeStateError(sessionID string) *ResumeStateError {
	return &ResumeStateError{
		baseError: baseError{
			message:    fmt.Sprintf("session %s has never run: nothing to resume", sessionID),
			cause:      ErrNoRuntimeSession,
			severity:   SeverityWarning,
			userFacing: true,
		},
		SessionID: sessionID,
	}
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// classifiable is implemented by all error types in this package.
type classifiable interface {
	Severity() Severity
	IsUserFacing() bool
}

// SeverityOf returns the severity of an error, defaulting to SeverityError
// for errors not created by this package.
func SeverityOf(err error) Severity {
	var c classifiable
	if errors.As(err, &c) {
		return c.Severity()
	}
	return SeverityError
}

// IsUserFacing reports whether an error's message is safe to display to end
// users. Errors not created by this package are considered internal.
func IsUserFacing(err error) bool {
	var c classifiable
	if errors.As(err, &c) {
		return c.IsUserFacing()
	}
	return false
}

// IsNotFound reports whether err represents a missing resource.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrSessionNotFound)
}

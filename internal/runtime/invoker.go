package runtime

import (
	"context"
)

// Request describes one invocation of the agent runtime.
type Request struct {
	// Prompt is the text sent to the runtime. Required.
	Prompt string

	// WorkingDir is the directory the runtime process runs in, normally the
	// session's worktree.
	WorkingDir string

	// ResumeSessionID resumes an existing runtime conversation when set.
	ResumeSessionID string

	// OnMessage, when non-nil, receives every normalized message as it is
	// parsed, including the final result. Called from the invoking goroutine.
	OnMessage func(Message)
}

// Invoker runs the agent runtime to completion and returns the final result
// message. Intermediate messages are delivered through Request.OnMessage.
// Cancelling the context terminates the runtime process.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Message, error)
}

package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/calebforbes/ensemble/internal/errors"
	"github.com/calebforbes/ensemble/internal/logging"
)

// BatchInvoker runs the runtime CLI in single-shot json mode: the process
// runs to completion under a wall-clock timeout and its whole output is
// parsed at once.
type BatchInvoker struct {
	command string
	timeout time.Duration
	logger  *logging.Logger
}

// NewBatchInvoker creates a batch invoker. A zero timeout means no limit
// beyond the caller's context.
func NewBatchInvoker(command string, timeout time.Duration, logger *logging.Logger) *BatchInvoker {
	if command == "" {
		command = "claude"
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &BatchInvoker{command: command, timeout: timeout, logger: logger.WithComponent("runtime.batch")}
}

func (b *BatchInvoker) Invoke(ctx context.Context, req Request) (*Message, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	args := []string{"-p", req.Prompt, "--output-format", "json"}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}

	cmd := exec.CommandContext(ctx, b.command, args...)
	cmd.Dir = req.WorkingDir
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.NewInvocationError(
			fmt.Sprintf("failed to start %s", b.command),
			fmt.Errorf("%w: %v", errors.ErrRuntimeStartFailed, err))
	}
	b.logger.Debug("runtime started", "command", b.command, "timeout", b.timeout)

	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.NewInvocationError(
			fmt.Sprintf("runtime exceeded %s timeout", b.timeout),
			errors.ErrRuntimeTimeout)
	}
	if ctx.Err() != nil {
		return nil, errors.NewInvocationError("invocation cancelled", ctx.Err())
	}
	if waitErr != nil && stdout.Len() == 0 {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		return nil, errors.NewInvocationError(fmt.Sprintf("runtime failed: %s", detail), waitErr)
	}

	return parseBatchOutput(stdout.Bytes(), req.OnMessage)
}

// parseBatchOutput decodes json-mode output: either a single result object
// or an array of messages where the last element is the authoritative result.
func parseBatchOutput(out []byte, onMessage func(Message)) (*Message, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, errors.NewInvocationError("runtime produced no output", errors.ErrEmptyOutput)
	}

	var raws []streamMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, errors.NewParseError("malformed batch output array", err, string(trimmed))
		}
	} else {
		var raw streamMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, errors.NewParseError("malformed batch output", err, string(trimmed))
		}
		raws = []streamMessage{raw}
	}
	if len(raws) == 0 {
		return nil, errors.NewInvocationError("runtime produced no messages", errors.ErrEmptyOutput)
	}

	var final *Message
	for i := range raws {
		msg := normalize(&raws[i])
		if onMessage != nil {
			onMessage(*msg)
		}
		final = msg
	}
	if !final.IsFinal() {
		return nil, errors.NewParseError("batch output did not end with a result", nil, string(trimmed))
	}
	return final, nil
}

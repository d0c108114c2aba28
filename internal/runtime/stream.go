package runtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/calebforbes/ensemble/internal/errors"
	"github.com/calebforbes/ensemble/internal/logging"
)

// scanBufferSize bounds a single stream-json line. Tool results can carry
// whole file contents.
const scanBufferSize = 1024 * 1024

// StreamInvoker runs the runtime CLI in stream-json mode and parses its
// output line by line, delivering each message as it arrives.
type StreamInvoker struct {
	command string
	logger  *logging.Logger
}

// NewStreamInvoker creates a streaming invoker that executes command
// (normally "claude").
func NewStreamInvoker(command string, logger *logging.Logger) *StreamInvoker {
	if command == "" {
		command = "claude"
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &StreamInvoker{command: command, logger: logger.WithComponent("runtime.stream")}
}

func (s *StreamInvoker) Invoke(ctx context.Context, req Request) (*Message, error) {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}

	cmd := exec.CommandContext(ctx, s.command, args...)
	cmd.Dir = req.WorkingDir
	// Bound the wait after kill so an orphaned grandchild holding the
	// stdout pipe cannot block the invocation forever.
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewInvocationError("failed to open stdout pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.NewInvocationError(
			fmt.Sprintf("failed to start %s", s.command),
			fmt.Errorf("%w: %v", errors.ErrRuntimeStartFailed, err))
	}
	s.logger.Debug("runtime started", "command", s.command, "resume", req.ResumeSessionID != "")

	var final *Message
	var firstParseErr error

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)
	for scanner.Scan() {
		msg, err := parseLine(scanner.Text())
		if err != nil {
			s.logger.Warn("skipping unparseable stream line", "error", err)
			if firstParseErr == nil {
				firstParseErr = err
			}
			continue
		}
		if msg == nil {
			continue
		}
		// The first result terminates the invocation; anything after it is
		// drained and discarded so the process can exit cleanly.
		if final != nil {
			continue
		}
		if req.OnMessage != nil {
			req.OnMessage(*msg)
		}
		if msg.IsFinal() {
			final = msg
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, errors.NewInvocationError("invocation cancelled", ctx.Err())
	}
	if final != nil {
		return final, nil
	}

	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		return nil, errors.NewInvocationError(fmt.Sprintf("runtime exited without a result: %s", detail), waitErr)
	}
	if scanErr != nil {
		return nil, errors.NewInvocationError("failed to read runtime output", scanErr)
	}
	if firstParseErr != nil {
		return nil, firstParseErr
	}
	return nil, errors.NewInvocationError("runtime produced no result", errors.ErrEmptyOutput)
}

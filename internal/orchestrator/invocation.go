package orchestrator

import (
	"context"

	"github.com/calebforbes/ensemble/internal/errors"
	"github.com/calebforbes/ensemble/internal/event"
	"github.com/calebforbes/ensemble/internal/runtime"
	"github.com/calebforbes/ensemble/internal/session"
)

// interventionMaxTurns is the reason attached when the runtime exhausts its
// turn budget: not a success, not a failure, a human decides.
const interventionMaxTurns = "Max turns reached"

// launchInvocation reserves the session's single-flight slot and runs the
// invocation on its own goroutine.
func (c *Controller) launchInvocation(id, prompt, resumeToken string) error {
	ctx, err := c.acquire(id)
	if err != nil {
		return err
	}

	s, err := c.registry.Get(id)
	if err != nil {
		c.release(id)
		return err
	}

	go c.runInvocation(ctx, id, runtime.Request{
		Prompt:          prompt,
		WorkingDir:      s.WorktreePath,
		ResumeSessionID: resumeToken,
		OnMessage: func(m runtime.Message) {
			c.handleRuntimeMessage(id, m)
		},
	})
	return nil
}

// runInvocation drives one runtime invocation to completion and applies the
// outcome to the session. It owns releasing the single-flight slot.
func (c *Controller) runInvocation(ctx context.Context, id string, req runtime.Request) {
	defer c.release(id)

	final, err := c.invoker.Invoke(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by pause, stop, or delete: the initiating operation
			// already owns the resulting state.
			c.logger.Debug("invocation cancelled", "sessionId", id)
			return
		}
		c.failSession(id, err)
		return
	}

	c.handleResult(id, final)
}

// handleRuntimeMessage processes one intermediate normalized message:
// capture the continuation token, journal assistant text, fan out to
// observers. Errors here mean the session was deleted mid-flight; the
// message is dropped.
func (c *Controller) handleRuntimeMessage(id string, m runtime.Message) {
	c.bus.Publish(event.NewRuntimeMessageEvent(id, string(m.Kind), m.Subtype, m.Content))

	switch m.Kind {
	case runtime.KindSystem:
		if m.SessionID != "" {
			_, err := c.registry.Update(id, func(s *session.Session) {
				s.SetRuntimeSession(m.SessionID)
			})
			if err != nil {
				c.logger.Debug("dropping runtime message for missing session", "sessionId", id)
			}
		}

	case runtime.KindAssistant:
		if m.Content == "" {
			return
		}
		var appended session.TerminalMessage
		_, err := c.registry.Update(id, func(s *session.Session) {
			s.SetRuntimeSession(m.SessionID)
			appended = s.AppendMessageLimit(session.MessageAssistant, m.Content, c.maxMessageLength)
		})
		if err != nil {
			c.logger.Debug("dropping runtime message for missing session", "sessionId", id)
			return
		}
		c.bus.Publish(event.NewMessageAppendedEvent(
			id, appended.ID, string(appended.Type), appended.Content))
	}
}

// handleResult applies the terminal result message: accounting first, then
// the outcome-specific transition.
func (c *Controller) handleResult(id string, final *runtime.Message) {
	_, err := c.registry.Update(id, func(s *session.Session) {
		s.SetRuntimeSession(final.SessionID)
		s.AddUsage(int64(final.TokensUsed), final.CostUSD)
	})
	if err != nil {
		c.logger.Debug("dropping result for missing session", "sessionId", id)
		return
	}

	switch {
	case final.Subtype == runtime.SubtypeErrorMaxTurns:
		// Turn budget exhausted: flag for intervention, leave status alone.
		_, err := c.registry.Update(id, func(s *session.Session) {
			s.NeedsIntervention = true
			s.AppendMessage(session.MessageWarning, interventionMaxTurns)
		})
		if err != nil {
			return
		}
		c.logger.Warn("session needs intervention", "sessionId", id, "reason", interventionMaxTurns)
		c.bus.Publish(event.NewInterventionNeededEvent(id, interventionMaxTurns))
		c.saveAsync()

	case final.IsError:
		c.failSession(id, errors.NewInvocationError(final.Result, nil).WithSession(id))

	default:
		content := final.Result
		if content == "" {
			content = "Session completed"
		}
		// Only a still-active session completes. If a pause, stop, or delete
		// won the race, that operation owns the final state and this result
		// is limited to the accounting already applied above.
		_, applied, err := c.transitionIf(id, session.StatusCompleted, fromActive, func(s *session.Session) {
			s.Progress = 100
			s.AppendMessage(session.MessageSuccess, content)
		})
		if err != nil || !applied {
			return
		}
		c.logger.Info("session completed", "sessionId", id, "costUsd", final.CostUSD)
		c.bus.Publish(event.NewSessionCompletedEvent(id, final.Result, final.CostUSD))
	}
}

// failSession moves a still-active session to error and surfaces the failure
// to observers. Invocation failures never crash the orchestrator. A session
// that was paused or stopped while the failure was in flight is left as the
// initiating operation set it.
func (c *Controller) failSession(id string, cause error) {
	c.logger.Error("session failed", "sessionId", id, "error", cause)

	_, applied, err := c.transitionIf(id, session.StatusError, fromActive, func(s *session.Session) {
		s.AppendMessage(session.MessageError, cause.Error())
	})
	if err != nil || !applied {
		return
	}
	c.bus.Publish(event.NewSessionErrorEvent(id, cause.Error()))
}

package orchestrator

import (
	"fmt"
	"time"

	"github.com/calebforbes/ensemble/internal/errors"
	"github.com/calebforbes/ensemble/internal/event"
	"github.com/calebforbes/ensemble/internal/session"
)

func errInvocationInFlight(id string) error {
	return errors.NewInvocationError("an invocation is already running",
		errors.ErrInvocationInFlight).WithSession(id)
}

// CreateSession provisions a worktree, registers a new active session, and
// launches its first runtime invocation. No session is registered if
// provisioning fails.
func (c *Controller) CreateSession(name, task string) (*session.Session, error) {
	id := session.NewID()
	now := time.Now()
	if name == "" {
		name = session.DefaultName(id, now)
	}

	branch, path, err := c.worktrees.Provision(name)
	if err != nil {
		return nil, err
	}

	s := &session.Session{
		ID:           id,
		Name:         name,
		Branch:       branch,
		WorktreePath: path,
		Status:       session.StatusActive,
		Messages:     []session.TerminalMessage{},
		Task:         task,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.catalog != nil {
		s.WorkspaceID = c.catalog.CurrentWorkspaceID()
		s.ProjectID = c.catalog.CurrentProjectID()
	}

	if err := c.registry.Register(s); err != nil {
		if dErr := c.worktrees.Deprovision(path, branch); dErr != nil {
			c.logger.Warn("deprovision after failed registration", "error", dErr)
		}
		return nil, err
	}

	if c.catalog != nil && s.WorkspaceID != "" && s.ProjectID != "" {
		if err := c.catalog.AddSessionToProject(s.WorkspaceID, s.ProjectID, id); err != nil {
			c.logger.Warn("failed to record session in project",
				"sessionId", id, "projectId", s.ProjectID, "error", err)
		}
	}

	c.logger.Info("session created", "sessionId", id, "name", name, "branch", branch)
	c.bus.Publish(event.NewSessionCreatedEvent(id, name, branch, path, task))
	c.saveAsync()

	if err := c.launchInvocation(id, task, ""); err != nil {
		// The slot is free at creation; this only fires if the caller races
		// a duplicate create with the same id, which Register prevents.
		return nil, err
	}

	out, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PauseSession cancels the session's in-flight invocation and marks it
// paused. Pausing a session that is not active is a no-op.
func (c *Controller) PauseSession(id string) error {
	c.cancelInflight(id)

	_, applied, err := c.transitionIf(id, session.StatusPaused, fromActive, nil)
	if err != nil {
		return err
	}
	if !applied {
		c.logger.Debug("pause ignored for non-active session", "sessionId", id)
	}
	return nil
}

// ResumeSession relaunches a paused session's invocation using its
// continuation token. An empty prompt is replaced with the default
// continuation instruction. Returns true when an invocation was launched.
func (c *Controller) ResumeSession(id, prompt string) (bool, error) {
	s, err := c.registry.Get(id)
	if err != nil {
		return false, err
	}
	if s.Status != session.StatusPaused {
		return false, fmt.Errorf("%w: session %s is %s",
			errors.ErrSessionNotPaused, id, s.Status)
	}
	if s.RuntimeSessionID == "" {
		return false, errors.NewResumeStateError(id)
	}
	if !c.worktrees.Exists(s.WorktreePath) {
		return false, errors.NewProvisioningError("worktree no longer exists",
			errors.ErrWorktreeMissing).WithPath(s.WorktreePath)
	}

	if prompt == "" {
		prompt = DefaultContinuationPrompt
	}

	// The paused check above is advisory; this conditional transition is
	// what keeps two racing resumes from both launching.
	_, applied, err := c.transitionIf(id, session.StatusActive, func(from session.Status) bool {
		return from == session.StatusPaused
	}, nil)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, fmt.Errorf("%w: session %s", errors.ErrSessionNotPaused, id)
	}
	if err := c.launchInvocation(id, prompt, s.RuntimeSessionID); err != nil {
		// Roll the status back so the session stays resumable.
		if _, _, tErr := c.transitionIf(id, session.StatusPaused, fromActive, nil); tErr != nil {
			c.logger.Error("failed to roll back resume", "sessionId", id, "error", tErr)
		}
		return false, err
	}
	return true, nil
}

// StopSession cancels any in-flight invocation and marks the session
// completed. Stopping an already-terminal session is a no-op.
func (c *Controller) StopSession(id string) error {
	c.cancelInflight(id)

	_, applied, err := c.transitionIf(id, session.StatusCompleted, func(from session.Status) bool {
		return from == session.StatusActive || from == session.StatusPaused
	}, func(s *session.Session) {
		s.AppendMessage(session.MessageInfo, "Session stopped")
	})
	if err != nil {
		return err
	}
	if applied {
		c.bus.Publish(event.NewSessionCompletedEvent(id, "", 0))
	}
	return nil
}

// ArchiveSession sets the archived flag. Archiving is orthogonal to status
// and idempotent.
func (c *Controller) ArchiveSession(id string) error {
	return c.setArchived(id, true)
}

// UnarchiveSession clears the archived flag.
func (c *Controller) UnarchiveSession(id string) error {
	return c.setArchived(id, false)
}

func (c *Controller) setArchived(id string, archived bool) error {
	_, err := c.registry.Update(id, func(s *session.Session) {
		s.Archived = archived
	})
	if err != nil {
		return err
	}
	c.saveAsync()
	return nil
}

// DeleteSession cancels any in-flight invocation, deprovisions the worktree
// (best-effort), and removes the session from the registry. The id, branch,
// and path remain tombstoned.
func (c *Controller) DeleteSession(id string) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	c.cancelInflight(id)

	if err := c.worktrees.Deprovision(s.WorktreePath, s.Branch); err != nil {
		// Deprovision failure never blocks removal from the registry.
		c.logger.Warn("worktree deprovision failed during delete",
			"sessionId", id, "path", s.WorktreePath, "error", err)
	}

	if err := c.registry.Delete(id); err != nil {
		return err
	}

	c.logger.Info("session deleted", "sessionId", id)
	c.bus.Publish(event.NewStatusChangedEvent(id, string(s.Status), "deleted"))
	c.saveAsync()
	return nil
}

// ListSessions returns copies of all sessions ordered by creation time, with
// transcripts capped at the display bound.
func (c *Controller) ListSessions() []*session.Session {
	sessions := c.registry.List()
	for _, s := range sessions {
		s.Messages = s.RecentMessages(c.maxDisplayMessages)
	}
	return sessions
}

// GetSession returns a copy of one session, transcript capped at the display
// bound, or a NotFoundError. The persisted snapshot always keeps the full
// transcript.
func (c *Controller) GetSession(id string) (*session.Session, error) {
	s, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}
	s.Messages = s.RecentMessages(c.maxDisplayMessages)
	return s, nil
}

// fromActive is the guard for transitions that only apply to a running
// session.
func fromActive(from session.Status) bool {
	return from == session.StatusActive
}

// transitionIf moves a session to a new status, gated on its current status.
// The guard, mutate, and the status write all happen inside one registry
// update, so a concurrent transition cannot slip between the check and the
// write. Reports whether the transition was applied; when the guard rejects,
// the session is untouched and no event is published. On success it emits the
// status-change event and triggers an async snapshot.
func (c *Controller) transitionIf(id string, to session.Status, from func(session.Status) bool,
	mutate func(*session.Session)) (*session.Session, bool, error) {

	var prev session.Status
	applied := false
	updated, err := c.registry.Update(id, func(s *session.Session) {
		prev = s.Status
		if from != nil && !from(prev) {
			return
		}
		applied = true
		if mutate != nil {
			mutate(s)
		}
		s.Status = to
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return updated, false, nil
	}

	if prev != to {
		c.logger.Info("status changed", "sessionId", id, "from", prev, "to", to)
		c.bus.Publish(event.NewStatusChangedEvent(id, string(prev), string(to)))
	}
	c.saveAsync()
	return updated, true, nil
}

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/calebforbes/ensemble/internal/event"
	"github.com/calebforbes/ensemble/internal/logging"
	"github.com/calebforbes/ensemble/internal/runtime"
	"github.com/calebforbes/ensemble/internal/session"
)

// DefaultAutosaveInterval is the cadence of the periodic snapshot timer.
const DefaultAutosaveInterval = 30 * time.Second

// DefaultContinuationPrompt is substituted when a session is resumed without
// an explicit prompt. The runtime rejects empty input.
const DefaultContinuationPrompt = "Continue working on the task."

// Options configures a Controller.
type Options struct {
	// AutosaveInterval overrides the 30s snapshot timer. Zero uses the
	// default; negative disables the timer entirely (tests).
	AutosaveInterval time.Duration

	// MaxMessageLength caps assistant transcript entries. Zero or negative
	// uses session.DefaultMaxMessageLength.
	MaxMessageLength int

	// MaxDisplayMessages caps the transcript returned by GetSession and
	// ListSessions; the registry and snapshot keep the full history. Zero
	// uses session.DefaultMaxDisplayMessages; negative removes the cap.
	MaxDisplayMessages int
}

// Controller is the lifecycle controller. All session operations go through
// it; it is safe for concurrent use.
type Controller struct {
	registry  *session.Registry
	worktrees Provisioner
	invoker   runtime.Invoker
	store     *session.SnapshotStore
	bus       *event.Bus
	catalog   Catalog
	logger    *logging.Logger

	// inflight maps session id to the cancellation handle of its running
	// invocation. An entry's presence is the single-flight guard.
	mu       sync.Mutex
	inflight map[string]context.CancelFunc

	autosaveInterval   time.Duration
	maxMessageLength   int
	maxDisplayMessages int
	stopAutosave       chan struct{}
	autosaveDone       chan struct{}
}

// New creates a Controller. The catalog may be nil when no workspace/project
// grouping is in use.
func New(registry *session.Registry, worktrees Provisioner, invoker runtime.Invoker,
	store *session.SnapshotStore, bus *event.Bus, catalog Catalog,
	logger *logging.Logger, opts Options) *Controller {

	if logger == nil {
		logger = logging.NopLogger()
	}
	interval := opts.AutosaveInterval
	if interval == 0 {
		interval = DefaultAutosaveInterval
	}
	maxDisplay := opts.MaxDisplayMessages
	if maxDisplay == 0 {
		maxDisplay = session.DefaultMaxDisplayMessages
	} else if maxDisplay < 0 {
		maxDisplay = 0
	}

	return &Controller{
		registry:           registry,
		worktrees:          worktrees,
		invoker:            invoker,
		store:              store,
		bus:                bus,
		catalog:            catalog,
		logger:             logger.WithComponent("orchestrator"),
		inflight:           make(map[string]context.CancelFunc),
		autosaveInterval:   interval,
		maxMessageLength:   opts.MaxMessageLength,
		maxDisplayMessages: maxDisplay,
	}
}

// Start loads the persisted snapshot into the registry and starts the
// autosave timer. Sessions persisted as active are reconciled to paused:
// their invocations did not survive the restart.
func (c *Controller) Start() error {
	snap, err := c.store.Load()
	if err != nil {
		// A malformed snapshot is treated as absence.
		c.logger.Warn("discarding unreadable snapshot", "error", err)
	} else if snap != nil {
		for _, rErr := range c.registry.Restore(snap.Sessions) {
			c.logger.Warn("skipping malformed snapshot record", "error", rErr)
		}
		c.logger.Info("restored sessions from snapshot",
			"count", c.registry.Len(), "savedAt", snap.SavedAt)
	}

	if c.autosaveInterval > 0 {
		c.stopAutosave = make(chan struct{})
		c.autosaveDone = make(chan struct{})
		go c.autosaveLoop()
	}
	return nil
}

// Shutdown cancels all in-flight invocations, stops the autosave timer, and
// writes a final snapshot.
func (c *Controller) Shutdown() {
	if c.stopAutosave != nil {
		close(c.stopAutosave)
		<-c.autosaveDone
		c.stopAutosave = nil
	}

	c.mu.Lock()
	for id, cancel := range c.inflight {
		c.logger.Info("cancelling invocation on shutdown", "sessionId", id)
		cancel()
	}
	c.mu.Unlock()

	c.saveSnapshot()
}

// autosaveLoop periodically snapshots the registry. It only reads session
// state; mutation stays with the operation paths.
func (c *Controller) autosaveLoop() {
	defer close(c.autosaveDone)

	ticker := time.NewTicker(c.autosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.saveSnapshot()
		case <-c.stopAutosave:
			return
		}
	}
}

// saveSnapshot persists the registry. Failures are logged, never propagated:
// a failed save must not abort the operation that triggered it.
func (c *Controller) saveSnapshot() {
	if err := c.store.Save(c.registry.List()); err != nil {
		c.logger.Error("snapshot save failed", "error", err)
	}
}

// saveAsync triggers a snapshot without blocking the calling operation.
func (c *Controller) saveAsync() {
	go c.saveSnapshot()
}

// acquire reserves the single in-flight invocation slot for a session.
// It fails if an invocation is already running.
func (c *Controller) acquire(id string) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, running := c.inflight[id]; running {
		return nil, errInvocationInFlight(id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.inflight[id] = cancel
	return ctx, nil
}

// release frees a session's invocation slot and cancels its context.
func (c *Controller) release(id string) {
	c.mu.Lock()
	cancel, ok := c.inflight[id]
	delete(c.inflight, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// cancelInflight cancels a session's running invocation, if any, and reports
// whether there was one.
func (c *Controller) cancelInflight(id string) bool {
	c.mu.Lock()
	cancel, ok := c.inflight[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InvocationRunning reports whether the session has an invocation in flight.
func (c *Controller) InvocationRunning(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[id]
	return ok
}

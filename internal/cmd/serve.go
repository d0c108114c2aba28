package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calebforbes/ensemble/internal/catalog"
	"github.com/calebforbes/ensemble/internal/config"
	"github.com/calebforbes/ensemble/internal/event"
	"github.com/calebforbes/ensemble/internal/logging"
	"github.com/calebforbes/ensemble/internal/orchestrator"
	"github.com/calebforbes/ensemble/internal/runtime"
	"github.com/calebforbes/ensemble/internal/server"
	"github.com/calebforbes/ensemble/internal/session"
	"github.com/calebforbes/ensemble/internal/watcher"
	"github.com/calebforbes/ensemble/internal/worktree"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session orchestrator",
	Long: `Start the orchestrator and its websocket server.

The server restores persisted sessions, reconciling any that were active
when the previous process exited to paused, and then accepts session
commands over the websocket endpoint until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	addr := cfg.Server.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	gitRoot, err := worktree.FindGitRoot(cwd)
	if err != nil {
		return fmt.Errorf("ensemble must run inside a git repository: %w", err)
	}

	logger, err := buildLogger(cfg, gitRoot)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()

	bus := event.NewBus()
	registry := session.NewRegistry()

	store, err := session.NewSnapshotStore(cfg.Persistence.ResolveStateFile(gitRoot))
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}

	worktrees, err := worktree.New(gitRoot, cfg.Paths.ResolveWorktreeDir(gitRoot), cfg.Branch.Prefix, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize worktree manager: %w", err)
	}

	catalogStore, err := catalog.NewStore(cfg.Persistence.ResolveCatalogFile(gitRoot))
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := ensureDefaultCatalog(catalogStore); err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}

	ctrl := orchestrator.New(registry, worktrees, buildInvoker(cfg, logger), store, bus, catalogStore,
		logger, orchestrator.Options{
			AutosaveInterval:   autosaveInterval(cfg),
			MaxMessageLength:   cfg.Session.MaxMessageLength,
			MaxDisplayMessages: cfg.Session.MaxDisplayMessages,
		})

	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	var watch *watcher.Watcher
	if cfg.Watcher.Enabled {
		watch = watcher.New(bus, logger)
		watch.SetDebounce(cfg.Watcher.Debounce())
		wireWatcher(watch, bus, ctrl, worktrees, logger)
	}

	srv := server.New(ctrl, bus, logger)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		fmt.Fprintf(cmd.OutOrStdout(), "ensemble listening on %s\n", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		shutdown(httpSrv, srv, watch, ctrl)
		return err
	}

	shutdown(httpSrv, srv, watch, ctrl)
	return nil
}

func shutdown(httpSrv *http.Server, srv *server.Server, watch *watcher.Watcher, ctrl *orchestrator.Controller) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	srv.Shutdown()
	if watch != nil {
		watch.Shutdown()
	}
	ctrl.Shutdown()
}

func buildLogger(cfg *config.Config, gitRoot string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.Logging.ResolveDir(gitRoot), cfg.Logging.Level)
}

func buildInvoker(cfg *config.Config, logger *logging.Logger) runtime.Invoker {
	if cfg.Runtime.Mode == "batch" {
		return runtime.NewBatchInvoker(cfg.Runtime.Command, cfg.Runtime.Timeout(), logger)
	}
	return runtime.NewStreamInvoker(cfg.Runtime.Command, logger)
}

// autosaveInterval maps config seconds onto orchestrator options, where a
// negative interval disables the timer.
func autosaveInterval(cfg *config.Config) time.Duration {
	if cfg.Persistence.AutosaveIntervalSeconds == 0 {
		return -1
	}
	return cfg.Persistence.AutosaveInterval()
}

// ensureDefaultCatalog creates a default workspace and project on first run.
func ensureDefaultCatalog(store *catalog.Store) error {
	if store.CurrentWorkspaceID() != "" {
		return nil
	}
	ws, err := store.CreateWorkspace("default")
	if err != nil {
		return err
	}
	_, err = store.CreateProject(ws.ID, "default")
	return err
}

// wireWatcher keeps file watches in step with session lifecycle: provisioned
// worktrees are watched, deleted sessions are unwatched. Sessions restored
// from a snapshot are watched on startup.
func wireWatcher(watch *watcher.Watcher, bus *event.Bus, ctrl *orchestrator.Controller,
	worktrees *worktree.Manager, logger *logging.Logger) {

	for _, s := range ctrl.ListSessions() {
		if s.WorktreePath == "" || !worktrees.Exists(s.WorktreePath) {
			continue
		}
		if err := watch.Watch(s.ID, s.WorktreePath); err != nil {
			logger.Warn("failed to watch restored worktree", "sessionId", s.ID, "error", err)
		}
	}

	bus.Subscribe("session.created", func(e event.Event) {
		created, ok := e.(event.SessionCreatedEvent)
		if !ok {
			return
		}
		if err := watch.Watch(created.SessionID, created.WorktreePath); err != nil {
			logger.Warn("failed to watch worktree", "sessionId", created.SessionID, "error", err)
		}
	})

	bus.Subscribe("session.status_changed", func(e event.Event) {
		changed, ok := e.(event.StatusChangedEvent)
		if !ok {
			return
		}
		if changed.Current == "deleted" {
			watch.Unwatch(changed.SessionID)
		}
	})
}

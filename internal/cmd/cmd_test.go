package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calebforbes/ensemble/internal/session"
	"github.com/calebforbes/ensemble/internal/testutil"
)

// chdir stands in for testing.T.Chdir, which needs Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir to %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "sessions"} {
		if !names[want] {
			t.Errorf("Expected %q subcommand to be registered", want)
		}
	}
}

func TestSessionsCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range sessionsCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"list", "show"} {
		if !names[want] {
			t.Errorf("Expected sessions %q subcommand to be registered", want)
		}
	}
}

func TestSessionsList_NoSnapshot(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo := testutil.SetupTestRepo(t)
	chdir(t, repo)

	out, err := executeCommand(t, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, "No sessions found") {
		t.Errorf("Expected empty-state message, got %q", out)
	}
}

func TestSessionsList_WithSnapshot(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo := testutil.SetupTestRepo(t)
	chdir(t, repo)

	store, err := session.NewSnapshotStore(filepath.Join(repo, ".ensemble", "state.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	sessions := []*session.Session{
		{
			ID:     "aaaabbbb-0000-0000-0000-000000000000",
			Name:   "fix-auth",
			Status: session.StatusCompleted,
			Branch: "ensemble/fix-auth-20260101-120000",
			Task:   "fix the login bug",
			Cost:   0.05, TokensUsed: 1200, Progress: 100,
		},
		{
			ID:       "ccccdddd-0000-0000-0000-000000000000",
			Name:     "old-work",
			Status:   session.StatusCompleted,
			Archived: true,
		},
	}
	if err := store.Save(sessions); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	out, err := executeCommand(t, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, "fix-auth") {
		t.Errorf("Expected session name in output, got %q", out)
	}
	if !strings.Contains(out, "completed") {
		t.Errorf("Expected status in output, got %q", out)
	}
	if strings.Contains(out, "old-work") {
		t.Errorf("Archived session should be hidden by default, got %q", out)
	}

	out, err = executeCommand(t, "sessions", "list", "--archived")
	if err != nil {
		t.Fatalf("sessions list --archived failed: %v", err)
	}
	if !strings.Contains(out, "old-work") {
		t.Errorf("Expected archived session with --archived, got %q", out)
	}
}

func TestSessionsShow(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo := testutil.SetupTestRepo(t)
	chdir(t, repo)

	store, err := session.NewSnapshotStore(filepath.Join(repo, ".ensemble", "state.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	s := &session.Session{
		ID:     "aaaabbbb-0000-0000-0000-000000000000",
		Name:   "fix-auth",
		Status: session.StatusPaused,
		Task:   "fix the login bug",
		Messages: []session.TerminalMessage{
			{ID: "1", Type: session.MessageAssistant, Content: "Looking at the handler"},
		},
	}
	if err := store.Save([]*session.Session{s}); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	// Prefix match on the ID.
	out, err := executeCommand(t, "sessions", "show", "aaaabbbb")
	if err != nil {
		t.Fatalf("sessions show failed: %v", err)
	}
	if !strings.Contains(out, "fix the login bug") {
		t.Errorf("Expected task in output, got %q", out)
	}
	if !strings.Contains(out, "Looking at the handler") {
		t.Errorf("Expected transcript in output, got %q", out)
	}

	if _, err := executeCommand(t, "sessions", "show", "missing"); err == nil {
		t.Error("Expected error for unknown session")
	}
}

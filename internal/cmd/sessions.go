package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calebforbes/ensemble/internal/config"
	"github.com/calebforbes/ensemble/internal/session"
	"github.com/calebforbes/ensemble/internal/worktree"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted sessions",
	Long:  `Commands for inspecting the persisted session snapshot without starting the server.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	Long: `List all sessions from the persisted snapshot with their status,
branch, cost, and token usage.`,
	RunE: runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's details and transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var listArchived bool

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsListCmd.Flags().BoolVarP(&listArchived, "archived", "a", false, "include archived sessions")
}

func loadSnapshot() (*session.Snapshot, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	gitRoot, err := worktree.FindGitRoot(cwd)
	if err != nil {
		return nil, nil, fmt.Errorf("ensemble must run inside a git repository: %w", err)
	}

	store, err := session.NewSnapshotStore(cfg.Persistence.ResolveStateFile(gitRoot))
	if err != nil {
		return nil, nil, err
	}
	snap, err := store.Load()
	return snap, cfg, err
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	snap, _, err := loadSnapshot()
	if err != nil {
		return err
	}
	if snap == nil || len(snap.Sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tBRANCH\tPROGRESS\tCOST\tTOKENS")
	for _, s := range snap.Sessions {
		if s.Archived && !listArchived {
			continue
		}
		status := string(s.Status)
		if s.NeedsIntervention {
			status += " (!)"
		}
		if s.Archived {
			status += " [archived]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t$%.4f\t%d\n",
			shortID(s.ID), s.Name, status, s.Branch, s.Progress, s.Cost, s.TokensUsed)
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	snap, cfg, err := loadSnapshot()
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot found")
	}

	var found *session.Session
	for _, s := range snap.Sessions {
		if s.ID == args[0] || strings.HasPrefix(s.ID, args[0]) {
			found = s
			break
		}
	}
	if found == nil {
		return fmt.Errorf("session not found: %s", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", found.ID)
	fmt.Fprintf(out, "Name:      %s\n", found.Name)
	fmt.Fprintf(out, "Status:    %s\n", found.Status)
	fmt.Fprintf(out, "Branch:    %s\n", found.Branch)
	fmt.Fprintf(out, "Worktree:  %s\n", found.WorktreePath)
	fmt.Fprintf(out, "Task:      %s\n", found.Task)
	fmt.Fprintf(out, "Progress:  %d%%\n", found.Progress)
	fmt.Fprintf(out, "Cost:      $%.4f\n", found.Cost)
	fmt.Fprintf(out, "Tokens:    %d\n", found.TokensUsed)
	if found.NeedsIntervention {
		fmt.Fprintln(out, "Needs intervention: yes")
	}
	if found.RuntimeSessionID != "" {
		fmt.Fprintf(out, "Runtime session: %s\n", found.RuntimeSessionID)
	}
	fmt.Fprintf(out, "Created:   %s\n", found.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(found.Messages) > 0 {
		recent := found.RecentMessages(cfg.Session.MaxDisplayMessages)
		if len(recent) < len(found.Messages) {
			fmt.Fprintf(out, "\nTranscript (last %d of %d):\n", len(recent), len(found.Messages))
		} else {
			fmt.Fprintln(out, "\nTranscript:")
		}
		for _, m := range recent {
			fmt.Fprintf(out, "  [%s] %s\n", m.Type, m.Content)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

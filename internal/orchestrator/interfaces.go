// Package orchestrator drives the session lifecycle: it owns the registry,
// launches runtime invocations, enforces the state machine, and persists
// snapshots.
package orchestrator

// Provisioner creates and destroys the isolated branch + working directory
// backing a session.
type Provisioner interface {
	// Provision creates a fresh branch and worktree for the named session.
	Provision(name string) (branch, path string, err error)

	// Deprovision removes the worktree and branch. Best-effort: callers log
	// failures and continue.
	Deprovision(path, branch string) error

	// Exists reports whether the worktree checkout is still on disk.
	Exists(path string) bool
}

// Catalog supplies the workspace/project references stamped onto new
// sessions. Implementations may return empty ids when nothing is selected.
type Catalog interface {
	CurrentWorkspaceID() string
	CurrentProjectID() string
	AddSessionToProject(workspaceID, projectID, sessionID string) error
}

package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/calebforbes/ensemble/internal/errors"
	"github.com/calebforbes/ensemble/internal/logging"
)

// Manager provisions isolated git worktrees for sessions. Each session gets
// its own branch and checkout so concurrent agents never touch the same tree.
type Manager struct {
	repoDir      string
	worktreeDir  string
	branchPrefix string
	logger       *logging.Logger
}

// FindGitRoot finds the root of the git repository by traversing up from startDir.
// It returns the directory containing .git (either a directory or a file for worktrees).
func FindGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			// .git can be a directory (normal repo) or a file (worktree)
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ErrNotGitRepository
		}
		dir = parent
	}
}

// New creates a worktree Manager rooted at the repository containing repoDir.
// Worktrees are placed under worktreeDir and branches are named with prefix.
func New(repoDir, worktreeDir, branchPrefix string, logger *logging.Logger) (*Manager, error) {
	gitRoot, err := FindGitRoot(repoDir)
	if err != nil {
		return nil, errors.NewProvisioningError(fmt.Sprintf("not a git repository: %s", repoDir), err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if branchPrefix == "" {
		branchPrefix = "ensemble"
	}
	if worktreeDir == "" {
		worktreeDir = filepath.Join(gitRoot, ".ensemble", "worktrees")
	}

	return &Manager{
		repoDir:      gitRoot,
		worktreeDir:  worktreeDir,
		branchPrefix: branchPrefix,
		logger:       logger.WithComponent("worktree"),
	}, nil
}

// RepoDir returns the resolved git repository root.
func (m *Manager) RepoDir() string {
	return m.repoDir
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeName converts an arbitrary session name into a git-safe ref component.
func sanitizeName(name string) string {
	s := unsafeNameChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		s = "session"
	}
	if len(s) > 48 {
		s = s[:48]
	}
	return s
}

// Provision creates a new branch and worktree for the named session. The
// branch is derived from the name plus a timestamp so repeated names never
// collide. Returns the branch name and the worktree path.
func (m *Manager) Provision(name string) (branch, path string, err error) {
	safe := sanitizeName(name)
	stamp := time.Now().UTC().Format("20060102-150405")
	branch = fmt.Sprintf("%s/%s-%s", m.branchPrefix, safe, stamp)
	path = filepath.Join(m.worktreeDir, fmt.Sprintf("%s-%s", safe, stamp))

	if _, statErr := os.Stat(path); statErr == nil {
		return "", "", errors.NewProvisioningError("worktree path already exists", errors.ErrWorktreeExists).
			WithBranch(branch).WithPath(path)
	}

	if err := os.MkdirAll(m.worktreeDir, 0755); err != nil {
		return "", "", errors.NewProvisioningError("failed to create worktree parent directory", err).WithPath(path)
	}

	cmd := exec.Command("git", "worktree", "add", "-b", branch, path)
	cmd.Dir = m.repoDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", "", errors.NewProvisioningError(
			fmt.Sprintf("git worktree add failed: %s", strings.TrimSpace(string(output))), err).
			WithBranch(branch).WithPath(path)
	}

	m.logger.Info("provisioned worktree", "branch", branch, "path", path)
	return branch, path, nil
}

// Deprovision removes a session's worktree and deletes its branch. Failures
// are reported but the caller treats removal as best-effort.
func (m *Manager) Deprovision(path, branch string) error {
	var firstErr error

	cmd := exec.Command("git", "worktree", "remove", "--force", path)
	cmd.Dir = m.repoDir
	if output, err := cmd.CombinedOutput(); err != nil {
		// Clean up manually and prune stale references.
		_ = os.RemoveAll(path)
		pruneCmd := exec.Command("git", "worktree", "prune")
		pruneCmd.Dir = m.repoDir
		_ = pruneCmd.Run()
		firstErr = errors.NewProvisioningError(
			fmt.Sprintf("git worktree remove failed: %s", strings.TrimSpace(string(output))), err).
			WithBranch(branch).WithPath(path)
	}

	if branch != "" {
		delCmd := exec.Command("git", "branch", "-D", branch)
		delCmd.Dir = m.repoDir
		if output, err := delCmd.CombinedOutput(); err != nil && firstErr == nil {
			firstErr = errors.NewProvisioningError(
				fmt.Sprintf("git branch delete failed: %s", strings.TrimSpace(string(output))), err).
				WithBranch(branch)
		}
	}

	if firstErr != nil {
		m.logger.Warn("deprovision incomplete", "branch", branch, "path", path, "error", firstErr)
	} else {
		m.logger.Info("deprovisioned worktree", "branch", branch, "path", path)
	}
	return firstErr
}

// Exists reports whether the worktree checkout is still present on disk.
func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// List returns the paths of all worktrees registered with the repository.
func (m *Manager) List() ([]string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var worktrees []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			worktrees = append(worktrees, strings.TrimPrefix(line, "worktree "))
		}
	}
	return worktrees, nil
}

// GetBranch returns the checked-out branch for a worktree path.
func (m *Manager) GetBranch(path string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get branch: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// HasUncommittedChanges checks if a worktree has uncommitted changes.
func (m *Manager) HasUncommittedChanges(path string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = path

	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to check status: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

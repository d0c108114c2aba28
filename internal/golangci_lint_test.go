package internal

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TestGolangciLint runs golangci-lint over the whole module so lint
// regressions surface next to the unit tests. Skipped when the binary is not
// on PATH.
func TestGolangciLint(t *testing.T) {
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint is not installed")
	}

	root, err := moduleRoot()
	if err != nil {
		t.Fatalf("locating module root: %v", err)
	}

	cmd := exec.Command("golangci-lint", "run", "--allow-parallel-runners", "./...")
	cmd.Dir = root
	// Sandboxed runners may not have a writable default build cache.
	cmd.Env = append(os.Environ(), "GOCACHE="+t.TempDir())

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Errorf("golangci-lint reported issues:\n%s", out)
	}
}

// moduleRoot walks up from the working directory to the directory containing
// go.mod.
func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", dir)
		}
		dir = parent
	}
}

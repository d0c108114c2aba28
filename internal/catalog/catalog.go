// Package catalog manages the workspace/project hierarchy sessions are
// grouped under. It is a simple CRUD store persisted as one JSON file;
// the orchestrator only reads the current selection at session creation.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebforbes/ensemble/internal/errors"
)

// Project groups sessions under a workspace.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SessionIDs []string  `json:"sessionIds,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Workspace is the top level of the hierarchy.
type Workspace struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Projects  []*Project `json:"projects,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// state is the persisted file layout.
type state struct {
	Workspaces         []*Workspace `json:"workspaces"`
	CurrentWorkspaceID string       `json:"currentWorkspaceId,omitempty"`
	CurrentProjectID   string       `json:"currentProjectId,omitempty"`
}

// Store is the file-backed catalog. Safe for concurrent use.
type Store struct {
	path string

	mu    sync.Mutex
	state state
}

// NewStore opens the catalog at path, loading existing state if present.
// A malformed file is reported; the caller decides whether to start over.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	st := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if err := json.Unmarshal(data, &st.state); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return st, nil
}

// CreateWorkspace adds a workspace and selects it if none is selected.
func (st *Store) CreateWorkspace(name string) (*Workspace, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ws := &Workspace{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	st.state.Workspaces = append(st.state.Workspaces, ws)
	if st.state.CurrentWorkspaceID == "" {
		st.state.CurrentWorkspaceID = ws.ID
	}
	if err := st.save(); err != nil {
		return nil, err
	}
	return cloneWorkspace(ws), nil
}

// CreateProject adds a project under a workspace and selects it if the
// workspace is current and no project is selected.
func (st *Store) CreateProject(workspaceID, name string) (*Project, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ws := st.findWorkspace(workspaceID)
	if ws == nil {
		return nil, errors.NewNotFoundError("workspace", workspaceID)
	}

	p := &Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	ws.Projects = append(ws.Projects, p)
	if st.state.CurrentWorkspaceID == ws.ID && st.state.CurrentProjectID == "" {
		st.state.CurrentProjectID = p.ID
	}
	if err := st.save(); err != nil {
		return nil, err
	}
	return cloneProject(p), nil
}

// SelectWorkspace makes a workspace current and clears the project
// selection if the project does not belong to it.
func (st *Store) SelectWorkspace(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	ws := st.findWorkspace(id)
	if ws == nil {
		return errors.NewNotFoundError("workspace", id)
	}
	st.state.CurrentWorkspaceID = id
	if findProject(ws, st.state.CurrentProjectID) == nil {
		st.state.CurrentProjectID = ""
	}
	return st.save()
}

// SelectProject makes a project in the current workspace current.
func (st *Store) SelectProject(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	ws := st.findWorkspace(st.state.CurrentWorkspaceID)
	if ws == nil || findProject(ws, id) == nil {
		return errors.NewNotFoundError("project", id)
	}
	st.state.CurrentProjectID = id
	return st.save()
}

// CurrentWorkspace returns the selected workspace, or nil.
func (st *Store) CurrentWorkspace() *Workspace {
	st.mu.Lock()
	defer st.mu.Unlock()
	return cloneWorkspace(st.findWorkspace(st.state.CurrentWorkspaceID))
}

// CurrentProject returns the selected project, or nil.
func (st *Store) CurrentProject() *Project {
	st.mu.Lock()
	defer st.mu.Unlock()

	ws := st.findWorkspace(st.state.CurrentWorkspaceID)
	if ws == nil {
		return nil
	}
	return cloneProject(findProject(ws, st.state.CurrentProjectID))
}

// CurrentWorkspaceID returns the selected workspace id, or "".
func (st *Store) CurrentWorkspaceID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.CurrentWorkspaceID
}

// CurrentProjectID returns the selected project id, or "".
func (st *Store) CurrentProjectID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.CurrentProjectID
}

// ListWorkspaces returns copies of all workspaces.
func (st *Store) ListWorkspaces() []*Workspace {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*Workspace, 0, len(st.state.Workspaces))
	for _, ws := range st.state.Workspaces {
		out = append(out, cloneWorkspace(ws))
	}
	return out
}

// AddSessionToProject records a session id under a project. Duplicate adds
// are ignored.
func (st *Store) AddSessionToProject(workspaceID, projectID, sessionID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	ws := st.findWorkspace(workspaceID)
	if ws == nil {
		return errors.NewNotFoundError("workspace", workspaceID)
	}
	p := findProject(ws, projectID)
	if p == nil {
		return errors.NewNotFoundError("project", projectID)
	}

	for _, id := range p.SessionIDs {
		if id == sessionID {
			return nil
		}
	}
	p.SessionIDs = append(p.SessionIDs, sessionID)
	return st.save()
}

func (st *Store) findWorkspace(id string) *Workspace {
	if id == "" {
		return nil
	}
	for _, ws := range st.state.Workspaces {
		if ws.ID == id {
			return ws
		}
	}
	return nil
}

func findProject(ws *Workspace, id string) *Project {
	if id == "" {
		return nil
	}
	for _, p := range ws.Projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// save writes the catalog file atomically. Callers hold the mutex.
func (st *Store) save() error {
	data, err := json.MarshalIndent(st.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(st.path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close catalog file: %w", err)
	}
	if err := os.Rename(tmpPath, st.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace catalog file: %w", err)
	}
	return nil
}

func cloneWorkspace(ws *Workspace) *Workspace {
	if ws == nil {
		return nil
	}
	cp := *ws
	cp.Projects = make([]*Project, len(ws.Projects))
	for i, p := range ws.Projects {
		cp.Projects[i] = cloneProject(p)
	}
	return &cp
}

func cloneProject(p *Project) *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.SessionIDs = append([]string(nil), p.SessionIDs...)
	return &cp
}

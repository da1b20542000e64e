// Package state stores the workspace registry: the mapping from workspace id
// to the directory agents run in.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thisislance98/claudia/errors"
)

// Workspace is a registered project directory.
type Workspace struct {
	ID      string    `yaml:"-" json:"id"`
	Name    string    `yaml:"name,omitempty" json:"name,omitempty"`
	Path    string    `yaml:"path" json:"path"`
	AddedAt time.Time `yaml:"added_at" json:"added_at"`
}

type registryFile struct {
	Workspaces map[string]Workspace `yaml:"workspaces"`
}

// Registry is a YAML-backed workspace registry. Every call re-reads the file
// so edits made by other processes are picked up.
type Registry struct {
	path string
	mu   sync.Mutex
}

// NewRegistry returns a registry stored at path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) load() (map[string]Workspace, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Workspace{}, nil
		}
		return nil, fmt.Errorf("read workspace registry: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse workspace registry: %w", err)
	}
	if f.Workspaces == nil {
		f.Workspaces = map[string]Workspace{}
	}
	for id, ws := range f.Workspaces {
		ws.ID = id
		f.Workspaces[id] = ws
	}
	return f.Workspaces, nil
}

func (r *Registry) save(ws map[string]Workspace) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	data, err := yaml.Marshal(registryFile{Workspaces: ws})
	if err != nil {
		return fmt.Errorf("marshal workspace registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("write workspace registry: %w", err)
	}
	return nil
}

// List returns all registered workspaces sorted by id.
func (r *Registry) List() ([]Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]Workspace, 0, len(ws))
	for _, w := range ws {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Add registers dir under id, replacing any previous entry.
func (r *Registry) Add(id, dir, name string) (Workspace, error) {
	if id == "" {
		return Workspace{}, errors.InvalidInput("workspace id cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve workspace path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return Workspace{}, errors.InvalidInput(fmt.Sprintf("workspace path %s is not a directory", abs))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ws, err := r.load()
	if err != nil {
		return Workspace{}, err
	}
	w := Workspace{ID: id, Name: name, Path: abs, AddedAt: time.Now().UTC()}
	ws[id] = w
	return w, r.save(ws)
}

// Remove deletes a workspace entry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := ws[id]; !ok {
		return errors.WorkspaceNotFound(id)
	}
	delete(ws, id)
	return r.save(ws)
}

// Resolve maps a workspace id to its directory. An unregistered id that is
// an absolute path to an existing directory resolves to itself.
func (r *Registry) Resolve(id string) (string, error) {
	r.mu.Lock()
	ws, err := r.load()
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	if w, ok := ws[id]; ok {
		return w.Path, nil
	}
	if filepath.IsAbs(id) {
		if info, err := os.Stat(id); err == nil && info.IsDir() {
			return filepath.Clean(id), nil
		}
	}
	return "", errors.WorkspaceNotFound(id)
}

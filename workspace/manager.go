package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/docforge/artifact"
	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/observability"
	"github.com/hazyhaar/docforge/progress"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
)

// ErrNotFound is returned for unknown workspace IDs.
var ErrNotFound = errors.New("workspace: not found")

// Config configures a Manager.
type Config struct {
	Registry  *toolreg.Registry `json:"-" yaml:"-"`
	Artifacts *artifact.Manager `json:"-" yaml:"-"`

	// Progress tunes the estimate shown during AI runs.
	Progress progress.Config `json:"progress" yaml:"progress"`

	// Recorder receives one event per dispatch. Nil disables recording.
	Recorder observability.Recorder `json:"-" yaml:"-"`

	NewID  idgen.Generator `json:"-" yaml:"-"`
	Logger *slog.Logger    `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Artifacts == nil {
		c.Artifacts = artifact.NewManager(artifact.Config{Logger: c.Logger})
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("ws_", idgen.NanoID(16))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager holds the live workspaces. Workspaces share only the registry and
// the artifact manager.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	byID  map[string]*Workspace
	idGen sync.Mutex
}

// NewManager creates an empty manager. Registry is required.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("workspace: registry is required")
	}
	cfg.defaults()
	return &Manager{cfg: cfg, logger: cfg.Logger, byID: make(map[string]*Workspace)}, nil
}

// Create opens an idle workspace on tool.
func (m *Manager) Create(tool transform.ToolID) (*Workspace, error) {
	d, ok := m.cfg.Registry.Lookup(tool)
	if !ok {
		return nil, transform.ValidationError(fmt.Sprintf("unknown tool %q", tool))
	}
	m.idGen.Lock()
	id := m.cfg.NewID()
	m.idGen.Unlock()

	w := &Workspace{
		id:          id,
		reg:         m.cfg.Registry,
		slot:        m.cfg.Artifacts.NewSlot(),
		progressCfg: m.cfg.Progress,
		recorder:    m.cfg.Recorder,
		logger:      m.logger,
		tool:        d,
		state:       StateIdle,
	}
	m.mu.Lock()
	m.byID[id] = w
	m.mu.Unlock()
	m.logger.Debug("workspace created", "workspace", id, "tool", tool)
	return w, nil
}

// Get returns a live workspace.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

// Delete closes and forgets a workspace.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	w, ok := m.byID[id]
	delete(m.byID, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	w.Close()
	m.logger.Debug("workspace deleted", "workspace", id)
	return nil
}

// List returns snapshots of every workspace, ordered by ID.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	ws := make([]*Workspace, 0, len(m.byID))
	for _, w := range m.byID {
		ws = append(ws, w)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of live workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Close tears down every workspace.
func (m *Manager) Close() {
	m.mu.Lock()
	ws := m.byID
	m.byID = make(map[string]*Workspace)
	m.mu.Unlock()
	for _, w := range ws {
		w.Close()
	}
}

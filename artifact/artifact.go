// CLAUDE:SUMMARY Single allocation/release point for downloadable results: handle table, revoke-before-publish slots, download handler.
// Package artifact owns every downloadable result docforge produces.
//
// An Artifact is a payload plus an access handle that resolves to a download
// URL while the artifact is live. Handles are a process-wide table: each one
// must be revoked when the result is superseded, the workspace resets or the
// owner goes away. Slot wraps one logical output position and guarantees at
// most one live handle for it.
//
// Usage:
//
//	mgr := artifact.NewManager(artifact.Config{BaseURL: "http://localhost:8090"})
//	slot := mgr.NewSlot()
//	a := slot.Set(pdfBytes, "application/pdf", "Merge_PDF_result.pdf")
//	fmt.Println(a.URL)
//	slot.Clear() // handle revoked, URL now 404s
package artifact

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/docforge/idgen"
)

// Config configures a Manager.
type Config struct {
	// BaseURL prefixes artifact URLs (e.g. "http://localhost:8090"). May be empty
	// for relative URLs.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// PathPrefix is the route the download handler is mounted on.
	PathPrefix string `json:"path_prefix" yaml:"path_prefix"`

	NewID  idgen.Generator  `json:"-" yaml:"-"`
	Now    func() time.Time `json:"-" yaml:"-"`
	Logger *slog.Logger     `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.PathPrefix == "" {
		c.PathPrefix = "/api/artifacts"
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("art_", idgen.NanoID(16))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Artifact is a published, revocable download.
type Artifact struct {
	Handle    string    `json:"handle"`
	Filename  string    `json:"filename"`
	MIME      string    `json:"mime"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`

	payload []byte
	revoked bool
}

// Bytes returns the payload. It stays readable after revocation; only the
// handle stops resolving.
func (a *Artifact) Bytes() []byte { return a.payload }

// Manager is the handle table.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	live map[string]*Artifact
}

// NewManager creates an empty handle table.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		live:   make(map[string]*Artifact),
	}
}

// Publish allocates a handle for payload.
func (m *Manager) Publish(payload []byte, mime, filename string) *Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishLocked(payload, mime, filename)
}

// Revoke releases a's handle. Revoking nil or an already revoked artifact is
// a no-op.
func (m *Manager) Revoke(a *Artifact) {
	if a == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeLocked(a)
}

// Replace revokes old and publishes the new payload as one step: no caller
// ever observes both handles live.
func (m *Manager) Replace(old *Artifact, payload []byte, mime, filename string) *Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old != nil {
		m.revokeLocked(old)
	}
	return m.publishLocked(payload, mime, filename)
}

// Open resolves a live handle.
func (m *Manager) Open(handle string) (*Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live[handle]
	return a, ok
}

// IsLive reports whether a still holds a handle.
func (m *Manager) IsLive(a *Artifact) bool {
	if a == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !a.revoked
}

// Live is the number of live handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close revokes every live handle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.live {
		m.revokeLocked(a)
	}
}

func (m *Manager) publishLocked(payload []byte, mime, filename string) *Artifact {
	handle := m.cfg.NewID()
	a := &Artifact{
		Handle:    handle,
		Filename:  filename,
		MIME:      mime,
		Size:      int64(len(payload)),
		URL:       strings.TrimRight(m.cfg.BaseURL, "/") + m.cfg.PathPrefix + "/" + handle,
		CreatedAt: m.cfg.Now(),
		payload:   payload,
	}
	m.live[handle] = a
	m.logger.Debug("artifact published", "handle", handle, "mime", mime, "size", a.Size)
	return a
}

func (m *Manager) revokeLocked(a *Artifact) {
	if a.revoked {
		return
	}
	a.revoked = true
	delete(m.live, a.Handle)
	m.logger.Debug("artifact revoked", "handle", a.Handle)
}

// Slot is one logical output position. The owner calls Set for every new
// result and Clear on reset, tool switch or teardown.
type Slot struct {
	m *Manager

	mu  sync.Mutex
	cur *Artifact
}

// NewSlot creates an empty slot bound to m.
func (m *Manager) NewSlot() *Slot {
	return &Slot{m: m}
}

// Set replaces the slot's artifact with a new one.
func (s *Slot) Set(payload []byte, mime, filename string) *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = s.m.Replace(s.cur, payload, mime, filename)
	return s.cur
}

// Current returns the live artifact or nil.
func (s *Slot) Current() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Clear revokes the slot's artifact, if any.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.m.Revoke(s.cur)
		s.cur = nil
	}
}

// CLAUDE:SUMMARY HTTP surface of docforge: chi routes for tools, workspaces, artifacts and chats, plus the MCP streamable HTTP endpoint.
// CLAUDE:DEPENDS toolreg, workspace, artifact, aiops, shield, observability, kit
// CLAUDE:EXPORTS Config, Server, New
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docforge/aiops"
	"github.com/hazyhaar/docforge/artifact"
	"github.com/hazyhaar/docforge/docpipe"
	"github.com/hazyhaar/docforge/observability"
	"github.com/hazyhaar/docforge/shield"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/workspace"
)

// RunLog lists recent runs. observability.EventLogger implements it.
type RunLog interface {
	Recent(ctx context.Context, tool string, limit int) ([]observability.RunEvent, error)
}

// Config wires the server to its collaborators. Registry, Workspaces and
// Artifacts are required.
type Config struct {
	Registry   *toolreg.Registry
	Workspaces *workspace.Manager
	Artifacts  *artifact.Manager

	// Chats enables the /api/chats routes.
	Chats *aiops.ChatStore
	// Pipeline adds the docpipe extraction tools to the MCP server.
	Pipeline *docpipe.Pipeline
	// Limiter guards run and chat routes. Nil disables rate limiting.
	Limiter *shield.RateLimiter

	// Stats and Runs back /api/stats, /api/metrics and /api/runs when set.
	Stats *observability.Metrics
	Runs  RunLog

	Stack shield.StackConfig

	// RunTimeout bounds one run or chat turn (default: 3m).
	RunTimeout time.Duration
	// MaxMemory is the multipart in-memory threshold (default: 32 MB).
	MaxMemory int64

	Version string
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.RunTimeout <= 0 {
		c.RunTimeout = 3 * time.Minute
	}
	if c.MaxMemory <= 0 {
		c.MaxMemory = 32 << 20
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Stack.Logger == nil {
		c.Stack.Logger = c.Logger
	}
}

// Server is the docforge HTTP handler.
type Server struct {
	cfg    Config
	logger *slog.Logger
	mcp    *mcp.Server
	router chi.Router
}

// New builds the router and the MCP server.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("server: registry is required")
	case cfg.Workspaces == nil:
		return nil, errors.New("server: workspace manager is required")
	case cfg.Artifacts == nil:
		return nil, errors.New("server: artifact manager is required")
	}
	cfg.defaults()

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "docforge", Version: cfg.Version}, nil)
	s.registerMCP(s.mcp)
	if cfg.Pipeline != nil {
		cfg.Pipeline.RegisterMCP(s.mcp)
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// MCP returns the MCP server, for transports other than HTTP.
func (s *Server) MCP() *mcp.Server { return s.mcp }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.cfg.Stack) {
		r.Use(mw)
	}

	limited := func(r chi.Router) chi.Router { return r }
	if s.cfg.Limiter != nil {
		limited = func(r chi.Router) chi.Router { return r.With(s.cfg.Limiter.Middleware) }
	}

	r.Get("/healthz", s.health)
	r.Get("/api/tools", s.listTools)
	r.Get("/api/stats", s.stats)
	r.Get("/api/runs", s.recentRuns)
	r.Get("/api/metrics", s.metrics)

	r.Route("/api/workspaces", func(r chi.Router) {
		r.Get("/", s.listWorkspaces)
		r.Post("/", s.createWorkspace)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getWorkspace)
			r.Delete("/", s.deleteWorkspace)
			r.Post("/files", s.uploadFiles)
			r.Put("/params", s.setParams)
			limited(r).Post("/run", s.runWorkspace)
			r.Post("/reset", s.resetWorkspace)
			r.Post("/tool", s.switchTool)
		})
	})

	r.Mount("/api/artifacts", s.cfg.Artifacts.Handler())

	if s.cfg.Chats != nil {
		r.Route("/api/chats", func(r chi.Router) {
			limited(r).Post("/", s.openChat)
			limited(r).Post("/{id}/messages", s.sendChat)
			r.Delete("/{id}", s.closeChat)
		})
	}

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	r.Handle("/mcp", mcpHandler)
	r.Handle("/mcp/*", mcpHandler)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"version":    s.cfg.Version,
		"workspaces": s.cfg.Workspaces.Len(),
		"artifacts":  s.cfg.Artifacts.Live(),
	}
	if s.cfg.Chats != nil {
		body["chats"] = s.cfg.Chats.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Registry.List())
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Stats == nil {
		writeJSON(w, http.StatusOK, []observability.ToolCounts{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Stats.Counts())
}

func (s *Server) recentRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeJSON(w, http.StatusOK, []observability.RunEvent{})
		return
	}
	runs, err := s.cfg.Runs.Recent(r.Context(), r.URL.Query().Get("tool"), queryInt(r, "limit", 50))
	if err != nil {
		fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []observability.RunEvent{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	var points []observability.Metric
	if s.cfg.Stats != nil {
		var err error
		points, err = s.cfg.Stats.Query(r.Context(), r.URL.Query().Get("name"), queryInt(r, "limit", 100))
		if err != nil {
			fail(w, r, err)
			return
		}
	}
	if points == nil {
		points = []observability.Metric{}
	}
	writeJSON(w, http.StatusOK, points)
}

// CLAUDE:SUMMARY Entry point for the docforge HTTP service: config, tool registry, workspaces, chats, observability and graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/docforge/aiclient"
	"github.com/hazyhaar/docforge/aiops"
	"github.com/hazyhaar/docforge/artifact"
	"github.com/hazyhaar/docforge/config"
	"github.com/hazyhaar/docforge/dataconv"
	"github.com/hazyhaar/docforge/docpipe"
	"github.com/hazyhaar/docforge/observability"
	"github.com/hazyhaar/docforge/pdfops"
	"github.com/hazyhaar/docforge/server"
	"github.com/hazyhaar/docforge/shield"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/workspace"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	lvl, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("docforge stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.HasAPIKey() {
		logger.Warn("GEMINI_API_KEY is not set, AI tools will fail until it is configured")
	}

	// AI client, shared by the AI dispatcher and chats.
	cfg.Gemini.Logger = logger
	client := aiclient.New(cfg.Gemini)
	pipe := docpipe.New(docpipe.Config{MaxFileSize: cfg.MaxUploadBytes, Logger: logger})

	// Browser for html-to-pdf, started on first use.
	cfg.Chrome.Logger = logger
	renderer := pdfops.NewChromeRenderer(cfg.Chrome)
	defer renderer.Close()

	reg, err := toolreg.New(
		pdfops.New(pdfops.Config{Renderer: renderer, Logger: logger}),
		aiops.New(aiops.Config{Client: client, Voice: cfg.Voice, Logger: logger}),
		dataconv.Tools{},
	)
	if err != nil {
		return err
	}
	logger.Info("tools registered", "count", len(reg.List()))

	arts := artifact.NewManager(artifact.Config{BaseURL: cfg.BaseURL, Logger: logger})
	defer arts.Close()

	// Observability: in-memory counters always, run log and timeseries with a DB.
	var db *sql.DB
	var runLog *observability.EventLogger
	if cfg.DB != "" {
		db, err = observability.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		runLog = observability.NewEventLogger(db, observability.WithLogger(logger))
		if err := observability.Cleanup(ctx, db, cfg.RetentionDays); err != nil {
			logger.Warn("observability cleanup", "error", err)
		}
	}
	metrics := observability.NewMetrics(observability.MetricsConfig{DB: db, Logger: logger})
	defer metrics.Close()

	var recorder observability.Recorder = metrics
	var runs server.RunLog
	if runLog != nil {
		recorder = observability.Multi(metrics, runLog)
		runs = runLog
	}

	workspaces, err := workspace.NewManager(workspace.Config{
		Registry:  reg,
		Artifacts: arts,
		Progress:  cfg.Progress,
		Recorder:  recorder,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer workspaces.Close()

	chats := aiops.NewChatStore(aiops.ChatConfig{
		Client:   client,
		Pipeline: pipe,
		IdleTTL:  cfg.ChatIdleTTL,
		Logger:   logger,
	})
	defer chats.Shutdown()

	cfg.RateLimit.Logger = logger
	limiter := shield.NewRateLimiter(cfg.RateLimit)
	limiter.StartGC(ctx.Done(), time.Minute)

	handler, err := server.New(server.Config{
		Registry:   reg,
		Workspaces: workspaces,
		Artifacts:  arts,
		Chats:      chats,
		Pipeline:   pipe,
		Limiter:    limiter,
		Stats:      metrics,
		Runs:       runs,
		Stack:      shield.StackConfig{MaxBodyBytes: cfg.MaxUploadBytes, Logger: logger},
		RunTimeout: cfg.RunTimeout,
		Version:    version,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("docforge listening", "addr", cfg.Addr, "base_url", cfg.BaseURL, "version", version)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

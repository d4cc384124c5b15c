// Package shield holds the HTTP middleware in front of the docforge API:
// security headers, request body limits, trace IDs with a per-request
// logger, HEAD handling and per-IP rate limiting.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(shield.StackConfig{MaxBodyBytes: 100 << 20}) {
//	    r.Use(mw)
//	}
//	r.With(limiter.Middleware).Post("/api/workspaces/{id}/run", run)
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// StackConfig configures DefaultStack.
type StackConfig struct {
	// MaxBodyBytes bounds request bodies (default: 100 MB).
	MaxBodyBytes int64
	Headers      HeaderConfig
	Logger       *slog.Logger
}

// DefaultStack returns the middleware applied to every docforge route, in
// order: HeadToGet, SecurityHeaders, MaxBody, TraceID. Rate limiting is
// applied per route.
func DefaultStack(cfg StackConfig) []func(http.Handler) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 100 << 20
	}
	if cfg.Headers == (HeaderConfig{}) {
		cfg.Headers = DefaultHeaders()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(cfg.Headers),
		MaxBody(cfg.MaxBodyBytes),
		TraceIDWith(cfg.Logger),
	}
}

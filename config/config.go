// CLAUDE:SUMMARY Server configuration: YAML file, then .env, then DOCFORGE_*/GEMINI_* env overrides, then Validate.
// Package config loads the docforge server configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, variables from
// .env files (which never override the real environment) and the process
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docforge/aiclient"
	"github.com/hazyhaar/docforge/pdfops"
	"github.com/hazyhaar/docforge/progress"
	"github.com/hazyhaar/docforge/shield"
)

// Environment variables read by Load.
const (
	EnvAddr      = "DOCFORGE_ADDR"
	EnvBaseURL   = "DOCFORGE_BASE_URL"
	EnvAPIKey    = "GEMINI_API_KEY"
	EnvModel     = "GEMINI_MODEL"
	EnvDB        = "DOCFORGE_DB"
	EnvLogLevel  = "DOCFORGE_LOG_LEVEL"
	EnvChromeURL = "DOCFORGE_CHROME_URL"
)

// Config is the whole server configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`

	// MaxUploadBytes bounds request bodies and single documents (default: 100 MB).
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// RunTimeout bounds one tool run or chat turn (default: 3m).
	RunTimeout time.Duration `yaml:"run_timeout"`

	Gemini aiclient.Config     `yaml:"gemini"`
	Voice  string              `yaml:"voice"`
	Chrome pdfops.ChromeConfig `yaml:"chrome"`

	ChatIdleTTL time.Duration `yaml:"chat_idle_ttl"`

	RateLimit shield.RateLimitConfig `yaml:"rate_limit"`
	Progress  progress.Config        `yaml:"progress"`

	// DB is the observability database path. Empty disables persistence.
	DB            string `yaml:"db"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:           ":8090",
		BaseURL:        "http://localhost:8090",
		LogLevel:       "info",
		MaxUploadBytes: 100 << 20,
		RunTimeout:     3 * time.Minute,
		ChatIdleTTL:    30 * time.Minute,
		RateLimit:      shield.RateLimitConfig{Rate: 1, Burst: 10},
		RetentionDays:  30,
	}
}

// Load builds the configuration. path may be empty for no YAML file.
// envFiles default to ".env"; missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvAddr, &c.Addr)
	set(EnvBaseURL, &c.BaseURL)
	set(EnvAPIKey, &c.Gemini.APIKey)
	set(EnvModel, &c.Gemini.Model)
	set(EnvDB, &c.DB)
	set(EnvLogLevel, &c.LogLevel)
	set(EnvChromeURL, &c.Chrome.RemoteURL)
}

// Validate reports a configuration the server cannot start with. A missing
// API key is not an error: AI tools then fail at run time.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be > 0")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be > 0")
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.Chrome.RemoteURL != "" {
		if u, err := url.Parse(c.Chrome.RemoteURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("chrome remote_url must be a ws:// or wss:// DevTools URL")
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// HasAPIKey reports whether AI tools can reach the model.
func (c *Config) HasAPIKey() bool { return c.Gemini.APIKey != "" }

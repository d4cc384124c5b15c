// CLAUDE:SUMMARY Gemini generateContent REST client: text/inline-data prompts, chat history, audio-modality speech; sentinel errors per HTTP status.
// Package aiclient is a minimal client for the Gemini generateContent API.
// It is constructed explicitly and injected; there is no package-level
// client and no retry.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/docforge/horosafe"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com"
	DefaultModel       = "gemini-2.5-flash"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
)

var (
	ErrMissingAPIKey = errors.New("aiclient: missing API key")
	ErrUnauthorized  = errors.New("aiclient: unauthorized")
	ErrRateLimited   = errors.New("aiclient: rate limited")
	ErrUnavailable   = errors.New("aiclient: service unavailable")
	ErrEmptyResponse = errors.New("aiclient: empty response")
)

// StatusError is a non-2xx answer not covered by a sentinel.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("aiclient: HTTP %d: %s", e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	APIKey      string        `json:"-" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model" yaml:"model"`
	SpeechModel string        `json:"speech_model" yaml:"speech_model"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`

	// MaxResponseBytes caps a response body (default: horosafe.MaxResponseBody).
	MaxResponseBytes int64 `json:"max_response_bytes" yaml:"max_response_bytes"`

	HTTPClient *http.Client `json:"-" yaml:"-"`
	Logger     *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = horosafe.MaxResponseBody
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to one Gemini endpoint.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a client. A missing API key is reported on each call, not
// here, so the rest of the service can start without one.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg, logger: cfg.Logger}
}

// Available reports whether an API key is configured.
func (c *Client) Available() bool { return c.cfg.APIKey != "" }

// Model is the text model name.
func (c *Client) Model() string { return c.cfg.Model }

// Part is one piece of a prompt: text or inline binary data.
type Part struct {
	Text string
	MIME string
	Data []byte
}

// TextPart wraps a string.
func TextPart(s string) Part { return Part{Text: s} }

// InlinePart wraps binary content sent base64-encoded.
func InlinePart(mime string, data []byte) Part { return Part{MIME: mime, Data: data} }

// Turn is one earlier message of a conversation. Role is "user" or "model".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// GenerateRequest is one generateContent call. History precedes Parts,
// which form the final user turn.
type GenerateRequest struct {
	System  string
	History []Turn
	Parts   []Part
}

// Generate returns the concatenated text of the first candidate.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	payload := request{Contents: toContents(req.History, req.Parts)}
	if req.System != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	resp, err := c.send(ctx, c.cfg.Model, payload)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Speak synthesises text with a prebuilt voice and returns raw 16-bit PCM.
func (c *Client) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	payload := request{
		Contents: toContents(nil, []Part{TextPart(text)}),
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: voice}},
			},
		},
	}
	resp, err := c.send(ctx, c.cfg.SpeechModel, payload)
	if err != nil {
		return nil, err
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData.Data, nil
		}
	}
	return nil, ErrEmptyResponse
}

func (c *Client) send(ctx context.Context, model string, payload request) (*response, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("aiclient: marshal: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("aiclient: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aiclient: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("aiclient: response", "model", model, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	data, readErr := horosafe.LimitedReadAll(resp.Body, c.cfg.MaxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(data)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, withMessage(ErrUnauthorized, msg)
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, withMessage(ErrRateLimited, msg)
		case resp.StatusCode >= 500:
			return nil, withMessage(ErrUnavailable, msg)
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: msg}
	}
	if readErr != nil {
		return nil, fmt.Errorf("aiclient: read body: %w", readErr)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("aiclient: decode: %w", err)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, out.PromptFeedback.BlockReason)
		}
		return nil, ErrEmptyResponse
	}
	return &out, nil
}

// withMessage attaches the service's own error text to a status sentinel.
func withMessage(sentinel error, msg string) error {
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// errorMessage extracts error.message from a Gemini error body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

func toContents(history []Turn, parts []Part) []content {
	out := make([]content, 0, len(history)+1)
	for _, t := range history {
		out = append(out, content{Role: t.Role, Parts: []part{{Text: t.Text}}})
	}
	last := content{Role: "user"}
	for _, p := range parts {
		if p.Data != nil {
			last.Parts = append(last.Parts, part{InlineData: &inlineData{MIMEType: p.MIME, Data: p.Data}})
		} else {
			last.Parts = append(last.Parts, part{Text: p.Text})
		}
	}
	return append(out, last)
}

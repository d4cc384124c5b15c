package pdfops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/docforge/horosafe"
	"github.com/hazyhaar/docforge/transform"
)

// Renderer prints a web page to PDF.
type Renderer interface {
	RenderPDF(ctx context.Context, url string) ([]byte, error)
}

// ChromeConfig configures ChromeRenderer.
type ChromeConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome on first use.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	// NavigateTimeout bounds navigation plus load (default: 30s).
	NavigateTimeout time.Duration `json:"navigate_timeout" yaml:"navigate_timeout"`

	// MaxPDFBytes caps the printed document (default: horosafe.MaxResponseBody).
	MaxPDFBytes int64 `json:"max_pdf_bytes" yaml:"max_pdf_bytes"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *ChromeConfig) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.MaxPDFBytes <= 0 {
		c.MaxPDFBytes = horosafe.MaxResponseBody
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ChromeRenderer renders through go-rod with stealth pages. The browser is
// started lazily and shared by all renders.
type ChromeRenderer struct {
	cfg ChromeConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewChromeRenderer creates a renderer. No browser is started until the
// first render.
func NewChromeRenderer(cfg ChromeConfig) *ChromeRenderer {
	cfg.defaults()
	return &ChromeRenderer{cfg: cfg}
}

func (r *ChromeRenderer) ensure() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("chrome: renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("chrome: launch: %w", err)
		}
		wsURL = u
		r.lnch = l
		r.cfg.Logger.Info("chrome: launched local browser")
	} else {
		r.cfg.Logger.Info("chrome: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		r.cleanupLocked()
		return nil, fmt.Errorf("chrome: connect: %w", err)
	}
	r.browser = b
	return b, nil
}

// RenderPDF navigates a fresh stealth tab to url and prints it with
// backgrounds.
func (r *ChromeRenderer) RenderPDF(ctx context.Context, url string) ([]byte, error) {
	b, err := r.ensure()
	if err != nil {
		return nil, err
	}
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("chrome: create tab: %w", err)
	}
	defer page.Close()
	router := r.guardRequests(page)
	defer router.Stop()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigateTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("chrome: navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		r.cfg.Logger.Warn("chrome: wait load", "error", err)
	}
	stream, err := p.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("chrome: print: %w", err)
	}
	return horosafe.LimitedReadAll(io.Reader(stream), r.cfg.MaxPDFBytes)
}

// guardRequests fails every request the tab makes, redirect hops included,
// whose URL does not pass checkRequest.
func (r *ChromeRenderer) guardRequests(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		target := h.Request.URL().String()
		if err := checkRequest(target); err != nil {
			r.cfg.Logger.Warn("chrome: request blocked", "url", target, "error", err)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// checkRequest applies the SSRF rules to a URL requested by the browser.
// Inline data and blob URLs never leave the tab.
func checkRequest(rawURL string) error {
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return nil
	}
	return horosafe.ValidateURL(rawURL)
}

// Close shuts the browser down. Later renders fail.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cleanupLocked()
	return nil
}

func (r *ChromeRenderer) cleanupLocked() {
	if r.browser != nil {
		r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
}

func (d *Dispatcher) htmlToPDF(ctx context.Context, item transform.WorkItem) (transform.Result, error) {
	url := item.Params.URL
	if url == "" {
		return transform.Result{}, transform.ValidationError("Please enter a URL.")
	}
	if err := horosafe.ValidateURL(url); err != nil {
		return transform.Result{}, transform.NewError(transform.KindValidation, "This URL cannot be rendered.", err)
	}
	if d.cfg.Renderer == nil {
		return transform.Result{}, transform.ProcessingError("html to pdf", errors.New("no browser renderer configured"))
	}
	out, err := d.cfg.Renderer.RenderPDF(ctx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return transform.Result{}, transform.NewError(transform.KindTimeout, "The page took too long to load.", err)
		}
		return transform.Result{}, transform.ProcessingError("html to pdf", err)
	}
	return pdfResult(out), nil
}

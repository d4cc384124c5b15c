package aiops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/docforge/aiclient"
	"github.com/hazyhaar/docforge/docpipe"
	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/transform"
)

// ErrChatNotFound is returned for unknown or expired chat IDs.
var ErrChatNotFound = errors.New("aiops: chat not found")

// ChatConfig configures a ChatStore.
type ChatConfig struct {
	Client   *aiclient.Client  `json:"-" yaml:"-"`
	Pipeline *docpipe.Pipeline `json:"-" yaml:"-"`

	// IdleTTL closes sessions unused for this long (default: 30m).
	IdleTTL time.Duration `json:"idle_ttl" yaml:"idle_ttl"`

	// SweepInterval is the janitor period (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`

	NewID  idgen.Generator  `json:"-" yaml:"-"`
	Now    func() time.Time `json:"-" yaml:"-"`
	Logger *slog.Logger     `json:"-" yaml:"-"`
}

func (c *ChatConfig) defaults() {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("chat_", idgen.NanoID(16))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Client == nil {
		c.Client = aiclient.New(aiclient.Config{Logger: c.Logger})
	}
	if c.Pipeline == nil {
		c.Pipeline = docpipe.New(docpipe.Config{Logger: c.Logger})
	}
}

// ChatSession is one conversation about one document.
type ChatSession struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Greeting string `json:"greeting"`

	system string

	mu       sync.Mutex
	history  []aiclient.Turn
	lastUsed time.Time
}

// Turns returns a copy of the conversation so far.
func (s *ChatSession) Turns() []aiclient.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]aiclient.Turn(nil), s.history...)
}

// ChatStore holds live chat sessions in memory.
type ChatStore struct {
	cfg    ChatConfig
	client *aiclient.Client
	pipe   *docpipe.Pipeline
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*ChatSession

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewChatStore creates a store and starts its janitor.
func NewChatStore(cfg ChatConfig) *ChatStore {
	cfg.defaults()
	s := &ChatStore{
		cfg:      cfg,
		client:   cfg.Client,
		pipe:     cfg.Pipeline,
		logger:   cfg.Logger,
		sessions: make(map[string]*ChatSession),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Open ingests f and starts a session. Failures are typed errors.
func (s *ChatStore) Open(ctx context.Context, f transform.InputFile) (*ChatSession, error) {
	text, err := s.ingest(ctx, f)
	if err != nil {
		return nil, err
	}
	sess := &ChatSession{
		ID:       s.cfg.NewID(),
		Name:     f.Name,
		Greeting: chatGreeting(f.Name),
		system:   chatInstruction(text),
		lastUsed: s.cfg.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.logger.Info("chat opened", "chat", sess.ID, "size", f.Size(), "text_runes", utf8.RuneCountInString(text))
	return sess, nil
}

// ingest turns the document into plain text. PDFs use the local text layer
// when it is good enough and the model otherwise.
func (s *ChatStore) ingest(ctx context.Context, f transform.InputFile) (string, error) {
	if len(f.Data) == 0 {
		return "", transform.InvalidInputError("The document is empty.")
	}
	isPDF := bytes.HasPrefix(f.Data, pdfMagic)
	if !isPDF && (strings.EqualFold(f.Ext(), "pdf") || f.MIME == "application/pdf") {
		return "", transform.InvalidInputError(fmt.Sprintf("%s is not a PDF document.", f.Name))
	}

	doc, err := s.pipe.Extract(ctx, f.Name, f.Data)
	switch {
	case isPDF:
		if err == nil && !doc.Quality.NeedsOCR() {
			return doc.RawText, nil
		}
		s.logger.Debug("chat: pdf text layer unusable, asking model", "name", f.Name, "error", err)
		out, gerr := s.client.Generate(ctx, aiclient.GenerateRequest{
			Parts: []aiclient.Part{aiclient.InlinePart("application/pdf", f.Data), aiclient.TextPart(promptWordText)},
		})
		if gerr != nil {
			return "", classify(gerr)
		}
		return strings.TrimSpace(out), nil
	case err == nil:
		return doc.RawText, nil
	case errors.Is(err, docpipe.ErrNoText):
		return "", transform.InvalidInputError(fmt.Sprintf("%s contains no text.", f.Name))
	case errors.Is(err, docpipe.ErrUnsupported) && utf8.Valid(f.Data):
		return string(f.Data), nil
	case errors.Is(err, docpipe.ErrUnsupported):
		return "", transform.UnsupportedFormatError(fmt.Sprintf("%s cannot be read as a document.", f.Name))
	default:
		return "", transform.ParseError(fmt.Sprintf("%s could not be read", f.Name), err)
	}
}

// Send asks one question. The turn is recorded only when the model answers.
func (s *ChatStore) Send(ctx context.Context, id, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", transform.ValidationError("Please enter a message.")
	}
	sess, ok := s.lookup(id)
	if !ok {
		return "", ErrChatNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	reply, err := s.client.Generate(ctx, aiclient.GenerateRequest{
		System:  sess.system,
		History: sess.history,
		Parts:   []aiclient.Part{aiclient.TextPart(message)},
	})
	if err != nil {
		return "", classify(err)
	}
	reply = strings.TrimSpace(reply)
	sess.history = append(sess.history,
		aiclient.Turn{Role: "user", Text: message},
		aiclient.Turn{Role: "model", Text: reply},
	)
	sess.lastUsed = s.cfg.Now()
	return reply, nil
}

// Get returns a live session.
func (s *ChatStore) Get(id string) (*ChatSession, bool) {
	return s.lookup(id)
}

func (s *ChatStore) lookup(id string) (*ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Close drops a session. It reports whether the session existed.
func (s *ChatStore) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len is the number of live sessions.
func (s *ChatStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than IdleTTL and returns how many
// were closed.
func (s *ChatStore) Sweep() int {
	cutoff := s.cfg.Now().Add(-s.cfg.IdleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue // a turn is in flight
		}
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *ChatStore) janitor() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("chat sessions expired", "count", n)
			}
		}
	}
}

// Shutdown stops the janitor and drops every session.
func (s *ChatStore) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	s.mu.Lock()
	s.sessions = make(map[string]*ChatSession)
	s.mu.Unlock()
}

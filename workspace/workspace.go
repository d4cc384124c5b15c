// CLAUDE:SUMMARY Per-tool workspace state machine: idle/file_selected/processing/complete/error, one run in flight, artifact slot, AI progress estimate.
// CLAUDE:DEPENDS toolreg, transform, artifact, progress, observability, kit
// CLAUDE:EXPORTS Workspace, Manager, Snapshot, State, ErrBusy, ErrClosed
// Package workspace drives one tool at a time for one user.
//
// A Workspace accepts files and parameters, runs the selected tool through
// the registry and publishes the result through its own artifact slot. Only
// one run is in flight per workspace. Any reset, tool switch or teardown
// that happens while a run is in flight discards that run's result.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/docforge/artifact"
	"github.com/hazyhaar/docforge/kit"
	"github.com/hazyhaar/docforge/observability"
	"github.com/hazyhaar/docforge/progress"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
)

// State is the workspace lifecycle position.
type State string

const (
	StateIdle         State = "idle"
	StateFileSelected State = "file_selected"
	StateProcessing   State = "processing"
	StateComplete     State = "complete"
	StateError        State = "error"
)

var (
	// ErrBusy is returned while a run is in flight.
	ErrBusy = errors.New("workspace: a run is already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("workspace: closed")
	// ErrNotReady is returned by Run outside file_selected and error.
	ErrNotReady = errors.New("workspace: nothing to run")
)

// FileInfo describes a selected file without its content.
type FileInfo struct {
	Name string `json:"name"`
	MIME string `json:"mime,omitempty"`
	Size int64  `json:"size"`
}

// ErrorInfo is the failure of the last run.
type ErrorInfo struct {
	Kind    transform.Kind `json:"kind"`
	Message string         `json:"message"`
	// Hint is the generic message for Kind, shown above Message.
	Hint string `json:"hint"`
}

func errorInfo(kind transform.Kind, message string) *ErrorInfo {
	return &ErrorInfo{Kind: kind, Message: message, Hint: kind.UserMessage()}
}

// Snapshot is a consistent view of a workspace.
type Snapshot struct {
	ID       string             `json:"id"`
	Tool     transform.ToolID   `json:"tool"`
	Title    string             `json:"title"`
	State    State              `json:"state"`
	Files    []FileInfo         `json:"files"`
	Params   transform.Params   `json:"params"`
	Progress int                `json:"progress"`
	Stage    string             `json:"stage,omitempty"`
	Error    *ErrorInfo         `json:"error,omitempty"`
	Artifact *artifact.Artifact `json:"artifact,omitempty"`
	// Text is the body of a text result, for inline display.
	Text string `json:"text,omitempty"`
	Note string `json:"note,omitempty"`
}

// Workspace is one tool session. All methods are safe for concurrent use.
type Workspace struct {
	id          string
	reg         *toolreg.Registry
	slot        *artifact.Slot
	progressCfg progress.Config
	recorder    observability.Recorder
	logger      *slog.Logger

	mu     sync.Mutex
	tool   toolreg.Descriptor
	state  State
	files  []transform.InputFile
	input  string
	params transform.Params
	err    *ErrorInfo
	text   string
	note   string
	closed bool

	// hasParams is set by SetParams; text tools have no files.
	hasParams bool
	// est is the estimate of the latest AI run.
	est *progress.Estimator

	// gen changes on every reset, switch and close; a run whose gen is stale
	// when it returns is discarded.
	gen      uint64
	cancel   context.CancelFunc
	inflight bool
}

// ID returns the workspace ID.
func (w *Workspace) ID() string { return w.id }

// SelectFiles replaces the selection. The first file is the primary input;
// the rest keep their order as secondary inputs. The previous result is
// revoked.
func (w *Workspace) SelectFiles(files []transform.InputFile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}
	w.clearResultLocked()
	w.files = append([]transform.InputFile(nil), files...)
	w.state = w.selectedStateLocked()
	return nil
}

// SetParams replaces the parameters and the free-text input.
func (w *Workspace) SetParams(params transform.Params, input string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}
	w.params = params
	w.input = input
	w.hasParams = true
	if w.state == StateComplete || w.state == StateError {
		w.clearResultLocked()
	}
	w.state = w.selectedStateLocked()
	return nil
}

// Run executes the tool synchronously and returns the resulting snapshot.
// Validation failures leave the workspace in file_selected and return the
// typed error; dispatch failures move it to error and return the snapshot.
func (w *Workspace) Run(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return Snapshot{}, ErrClosed
	case w.state == StateProcessing || w.inflight:
		w.mu.Unlock()
		return Snapshot{}, ErrBusy
	case w.state != StateFileSelected && w.state != StateError:
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, ErrNotReady
	}

	d := w.tool
	item := transform.WorkItem{Tool: d.ID, Input: w.input, Params: w.params}
	if len(w.files) > 0 {
		primary := w.files[0]
		item.Primary = &primary
		item.Secondary = append([]transform.InputFile(nil), w.files[1:]...)
	}
	if err := toolreg.Validate(d, item); err != nil {
		w.state = StateFileSelected
		w.err = errorInfo(transform.KindValidation, transform.AsError(err).Message)
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, err
	}

	w.clearResultLocked()
	w.state = StateProcessing
	w.inflight = true
	gen := w.gen
	runCtx, cancel := context.WithCancel(kit.WithWorkspaceID(ctx, w.id))
	w.cancel = cancel
	var est *progress.Estimator
	if d.Target == transform.TargetAI {
		est = progress.New(w.progressCfg)
		est.Start()
		w.est = est
	}
	w.mu.Unlock()
	defer cancel()

	start := time.Now()
	res := w.dispatch(runCtx, d, item)
	elapsed := time.Since(start)

	if est != nil {
		if res.IsError() || runCtx.Err() != nil {
			est.Stop()
		} else {
			est.Finish(runCtx)
		}
	}

	w.mu.Lock()
	w.inflight = false
	stale := w.gen != gen || w.closed
	snap := w.finishLocked(d, res, elapsed, stale)
	w.mu.Unlock()

	w.record(ctx, d, item, res, elapsed, stale)
	return snap, nil
}

// finishLocked applies a run's result unless the run went stale.
func (w *Workspace) finishLocked(d toolreg.Descriptor, res transform.Result, elapsed time.Duration, stale bool) Snapshot {
	if stale {
		w.logger.Info("workspace: run result discarded", "workspace", w.id, "tool", d.ID)
		return w.snapshotLocked()
	}
	w.cancel = nil

	if res.IsError() {
		w.state = StateError
		w.err = errorInfo(res.Err.Kind, res.Err.Detail())
		w.logger.Warn("workspace: run failed", "workspace", w.id, "tool", d.ID, "kind", res.Err.Kind, "error", res.Err)
		return w.snapshotLocked()
	}

	a, err := w.slot.SetResult(res, ResultName(d.Title))
	if err != nil {
		w.state = StateError
		w.err = errorInfo(transform.KindProcessing, err.Error())
		return w.snapshotLocked()
	}
	if res.Kind == transform.ResultText {
		w.text = res.Text
	}
	w.note = res.Note
	w.state = StateComplete
	w.logger.Info("workspace: run complete", "workspace", w.id, "tool", d.ID, "bytes", a.Size, "duration_ms", elapsed.Milliseconds())
	return w.snapshotLocked()
}

// dispatch calls the handler and turns a panic into a processing error.
func (w *Workspace) dispatch(ctx context.Context, d toolreg.Descriptor, item transform.WorkItem) (res transform.Result) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("workspace: handler panic", "workspace", w.id, "tool", d.ID, "panic", r, "stack", string(debug.Stack()))
			res = transform.Failed(transform.ProcessingError(d.Title+" failed unexpectedly", fmt.Errorf("panic: %v", r)))
		}
	}()
	return d.Handler(ctx, item)
}

func (w *Workspace) record(ctx context.Context, d toolreg.Descriptor, item transform.WorkItem, res transform.Result, elapsed time.Duration, stale bool) {
	if w.recorder == nil {
		return
	}
	ev := observability.RunEvent{
		Workspace: w.id,
		Tool:      string(d.ID),
		Target:    string(d.Target),
		Outcome:   observability.OutcomeSuccess,
		Duration:  elapsed,
		At:        time.Now(),
	}
	for _, f := range item.Files() {
		ev.InputBytes += f.Size()
	}
	ev.InputBytes += int64(len(item.Input))
	switch {
	case stale:
		ev.Outcome = observability.OutcomeCancelled
	case res.IsError():
		ev.Outcome = observability.OutcomeError
		ev.ErrorKind = string(res.Err.Kind)
	}
	w.recorder.RecordRun(ctx, ev)
}

// Reset returns a finished workspace to idle, dropping files, parameters
// and the result.
func (w *Workspace) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}
	w.clearLocked()
	return nil
}

// SwitchTool selects another tool. It forces idle from any state, including
// processing: the in-flight run is cancelled and its result discarded.
func (w *Workspace) SwitchTool(id transform.ToolID) error {
	d, ok := w.reg.Lookup(id)
	if !ok {
		return transform.ValidationError(fmt.Sprintf("unknown tool %q", id))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.abortLocked()
	w.clearLocked()
	w.tool = d
	return nil
}

// Close tears the workspace down. It is idempotent.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.abortLocked()
	w.clearLocked()
	w.closed = true
}

// Snapshot returns the current view.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workspace) mutableLocked() error {
	if w.closed {
		return ErrClosed
	}
	if w.state == StateProcessing {
		return ErrBusy
	}
	return nil
}

func (w *Workspace) selectedStateLocked() State {
	if len(w.files) == 0 && !w.hasParams {
		return StateIdle
	}
	return StateFileSelected
}

// abortLocked cancels an in-flight run and invalidates its result.
func (w *Workspace) abortLocked() {
	w.gen++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Workspace) clearResultLocked() {
	w.slot.Clear()
	if w.est != nil {
		w.est.Stop()
		w.est = nil
	}
	w.err = nil
	w.text = ""
	w.note = ""
}

func (w *Workspace) clearLocked() {
	w.gen++
	w.clearResultLocked()
	w.files = nil
	w.input = ""
	w.params = transform.Params{}
	w.hasParams = false
	w.state = StateIdle
}

func (w *Workspace) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:       w.id,
		Tool:     w.tool.ID,
		Title:    w.tool.Title,
		State:    w.state,
		Files:    make([]FileInfo, 0, len(w.files)),
		Params:   w.params,
		Error:    w.err,
		Artifact: w.slot.Current(),
		Text:     w.text,
		Note:     w.note,
	}
	for _, f := range w.files {
		s.Files = append(s.Files, FileInfo{Name: f.Name, MIME: f.MIME, Size: f.Size()})
	}
	switch w.state {
	case StateProcessing:
		if w.est != nil {
			s.Progress = w.est.Value()
			s.Stage = progress.Stage(s.Progress)
		}
	case StateComplete:
		s.Progress = 100
	}
	return s
}

// ResultName is the download name without extension: the tool title with
// whitespace runs replaced by underscores, then "_result".
func ResultName(title string) string {
	return strings.Join(strings.Fields(title), "_") + "_result"
}

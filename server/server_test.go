package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docforge/aiclient"
	"github.com/hazyhaar/docforge/aiops"
	"github.com/hazyhaar/docforge/artifact"
	"github.com/hazyhaar/docforge/dataconv"
	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/observability"
	"github.com/hazyhaar/docforge/shield"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
	"github.com/hazyhaar/docforge/workspace"
)

const (
	toolEcho   transform.ToolID = "echo"
	toolRemote transform.ToolID = "remote-fail"
)

type testEnv struct {
	srv     *Server
	arts    *artifact.Manager
	metrics *observability.Metrics
}

func fakeGemini(t *testing.T, reply string) *aiclient.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		b, _ := json.Marshal(reply)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":`+string(b)+`}]}}]}`)
	}))
	t.Cleanup(ts.Close)
	return aiclient.New(aiclient.Config{APIKey: "test-key", BaseURL: ts.URL})
}

func newEnv(t *testing.T, limiter *shield.RateLimiter) *testEnv {
	t.Helper()
	reg, err := toolreg.New(dataconv.Tools{NewUUID: idgen.Sequence("id-")})
	if err != nil {
		t.Fatal(err)
	}
	err = reg.Register(
		toolreg.Descriptor{ID: toolEcho, Title: "Echo", Target: transform.TargetLocal, MinFiles: 1,
			Handler: func(_ context.Context, item transform.WorkItem) transform.Result {
				var names []string
				for _, f := range item.Files() {
					names = append(names, f.Name+"="+f.MIME)
				}
				return transform.Text(strings.Join(names, ","), "txt")
			}},
		toolreg.Descriptor{ID: toolRemote, Title: "Remote Fail", Target: transform.TargetLocal,
			Handler: func(context.Context, transform.WorkItem) transform.Result {
				return transform.Failed(transform.NewError(transform.KindRemote, "upstream refused", nil))
			}},
	)
	if err != nil {
		t.Fatal(err)
	}

	arts := artifact.NewManager(artifact.Config{BaseURL: "http://docs.test", NewID: idgen.Sequence("art_")})
	metrics := observability.NewMetrics(observability.MetricsConfig{})
	wsm, err := workspace.NewManager(workspace.Config{
		Registry:  reg,
		Artifacts: arts,
		Recorder:  metrics,
		NewID:     idgen.Sequence("ws_"),
	})
	if err != nil {
		t.Fatal(err)
	}
	chats := aiops.NewChatStore(aiops.ChatConfig{
		Client:        fakeGemini(t, "The answer is 42."),
		SweepInterval: time.Hour,
		NewID:         idgen.Sequence("chat_"),
	})
	t.Cleanup(func() {
		chats.Shutdown()
		wsm.Close()
		metrics.Close()
	})

	srv, err := New(Config{
		Registry:   reg,
		Workspaces: wsm,
		Artifacts:  arts,
		Chats:      chats,
		Limiter:    limiter,
		Stats:      metrics,
		RunTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{srv: srv, arts: arts, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, _ := json.Marshal(v)
		body = bytes.NewReader(b)
	}
	return e.do(t, method, path, body, "application/json")
}

func multipartBody(t *testing.T, files map[string]string, order []string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, files[name])
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createWorkspace(t *testing.T, e *testEnv, tool transform.ToolID) string {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/api/workspaces", map[string]any{"tool": tool})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	return decode[workspace.Snapshot](t, rec).ID
}

func TestWorkspace_UploadRunDownload(t *testing.T) {
	// WHAT: Upload a CSV, run csv-to-json, download the artifact, reset revokes it.
	// WHY: This is the whole user path through the HTTP surface.
	e := newEnv(t, nil)
	id := createWorkspace(t, e, transform.CSVToJSON)

	body, ct := multipartBody(t, map[string]string{"people.csv": "name,age\nada,36\n"}, []string{"people.csv"})
	rec := e.do(t, http.MethodPost, "/api/workspaces/"+id+"/files", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	if snap := decode[workspace.Snapshot](t, rec); snap.State != workspace.StateFileSelected || len(snap.Files) != 1 {
		t.Fatalf("after upload: %+v", snap)
	}

	rec = e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run: %d %s", rec.Code, rec.Body.String())
	}
	snap := decode[workspace.Snapshot](t, rec)
	if snap.State != workspace.StateComplete || snap.Artifact == nil {
		t.Fatalf("after run: %+v", snap)
	}
	if !strings.HasPrefix(snap.Artifact.URL, "http://docs.test/api/artifacts/") {
		t.Fatalf("artifact URL = %q", snap.Artifact.URL)
	}

	dl := e.do(t, http.MethodGet, "/api/artifacts/"+snap.Artifact.Handle, nil, "")
	if dl.Code != http.StatusOK || !strings.Contains(dl.Body.String(), `"ada"`) {
		t.Fatalf("download: %d %q", dl.Code, dl.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/api/workspaces/"+id+"/reset", nil, "")
	if rec.Code != http.StatusOK || decode[workspace.Snapshot](t, rec).State != workspace.StateIdle {
		t.Fatalf("reset: %d %s", rec.Code, rec.Body.String())
	}
	if dl := e.do(t, http.MethodGet, "/api/artifacts/"+snap.Artifact.Handle, nil, ""); dl.Code != http.StatusNotFound {
		t.Fatalf("download after reset: %d", dl.Code)
	}
}

func TestWorkspace_UploadOrderAndMIME(t *testing.T) {
	// WHAT: Parts keep their upload order and untyped parts get a MIME from the extension.
	e := newEnv(t, nil)
	id := createWorkspace(t, e, toolEcho)

	files := map[string]string{"b.pdf": "%PDF-1.7", "a.png": "png"}
	body, ct := multipartBody(t, files, []string{"b.pdf", "a.png"})
	if rec := e.do(t, http.MethodPost, "/api/workspaces/"+id+"/files", body, ct); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	rec := e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, "")
	snap := decode[workspace.Snapshot](t, rec)
	if snap.Text != "b.pdf=application/pdf,a.png=image/png" {
		t.Fatalf("text = %q", snap.Text)
	}
}

func TestWorkspace_ParamsAndTextInput(t *testing.T) {
	e := newEnv(t, nil)
	id := createWorkspace(t, e, transform.UUIDGenerator)

	rec := e.doJSON(t, http.MethodPut, "/api/workspaces/"+id+"/params", map[string]any{"params": map[string]any{"count": 3}})
	if rec.Code != http.StatusOK {
		t.Fatalf("params: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, "")
	snap := decode[workspace.Snapshot](t, rec)
	if snap.Text != "id-1\nid-2\nid-3" {
		t.Fatalf("text = %q", snap.Text)
	}
	if snap.Artifact == nil || snap.Artifact.Filename != "uuids.txt" {
		t.Fatalf("artifact = %+v", snap.Artifact)
	}
}

func TestWorkspace_ErrorStatuses(t *testing.T) {
	// WHAT: Refusals map to 4xx with a {error, kind} body.
	e := newEnv(t, nil)
	id := createWorkspace(t, e, toolEcho)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
		kind   string
	}{
		{"unknown workspace", http.MethodGet, "/api/workspaces/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown tool", http.MethodPost, "/api/workspaces", map[string]any{"tool": "nope"}, http.StatusBadRequest, "validation"},
		{"run when idle", http.MethodPost, "/api/workspaces/" + id + "/run", nil, http.StatusConflict, "not_ready"},
		{"switch to unknown", http.MethodPost, "/api/workspaces/" + id + "/tool", map[string]any{"tool": "nope"}, http.StatusBadRequest, "validation"},
		{"delete unknown", http.MethodDelete, "/api/workspaces/nope", nil, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.doJSON(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.code, rec.Body.String())
			}
			got := decode[map[string]string](t, rec)
			if got["kind"] != tc.kind || got["error"] == "" {
				t.Fatalf("body = %v", got)
			}
		})
	}

	rec := e.do(t, http.MethodPost, "/api/workspaces", strings.NewReader("{"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad JSON: %d", rec.Code)
	}
}

func TestWorkspace_ValidationFailureIs400(t *testing.T) {
	// WHAT: A run blocked by the tool's gates answers 400 and leaves the
	// workspace ready for another attempt.
	e := newEnv(t, nil)
	id := createWorkspace(t, e, transform.JSONToCSV)

	body, ct := multipartBody(t, map[string]string{"notes.txt": "x"}, []string{"notes.txt"})
	e.do(t, http.MethodPost, "/api/workspaces/"+id+"/files", body, ct)
	rec := e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	get := e.do(t, http.MethodGet, "/api/workspaces/"+id, nil, "")
	if snap := decode[workspace.Snapshot](t, get); snap.State != workspace.StateFileSelected {
		t.Fatalf("state = %s", snap.State)
	}
}

func TestWorkspace_DispatchFailureIsSnapshot(t *testing.T) {
	// WHAT: A failed dispatch answers 200 with state "error" and the kind.
	// WHY: The run itself was accepted; the failure belongs to the workspace.
	e := newEnv(t, nil)
	id := createWorkspace(t, e, toolRemote)
	e.doJSON(t, http.MethodPut, "/api/workspaces/"+id+"/params", map[string]any{"input": "go"})

	rec := e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	snap := decode[workspace.Snapshot](t, rec)
	if snap.State != workspace.StateError || snap.Error == nil || snap.Error.Kind != transform.KindRemote {
		t.Fatalf("snapshot = %+v", snap)
	}

	stats := decode[[]observability.ToolCounts](t, e.do(t, http.MethodGet, "/api/stats", nil, ""))
	if len(stats) != 1 || stats[0].Failures != 1 || stats[0].ByKind["remote"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestWorkspace_RunRateLimited(t *testing.T) {
	e := newEnv(t, shield.NewRateLimiter(shield.RateLimitConfig{Rate: 0.001, Burst: 1}))
	id := createWorkspace(t, e, transform.UUIDGenerator)
	e.doJSON(t, http.MethodPut, "/api/workspaces/"+id+"/params", map[string]any{"params": map[string]any{"count": 1}})

	if rec := e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("first run: %d", rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second run: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/workspaces/"+id, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("snapshot should not be limited: %d", rec.Code)
	}
}

func TestWorkspace_DeleteRevokesArtifact(t *testing.T) {
	e := newEnv(t, nil)
	id := createWorkspace(t, e, transform.JWTSecretGenerator)
	e.doJSON(t, http.MethodPut, "/api/workspaces/"+id+"/params", map[string]any{"params": map[string]any{"length": 48}})
	snap := decode[workspace.Snapshot](t, e.do(t, http.MethodPost, "/api/workspaces/"+id+"/run", nil, ""))
	if len(snap.Text) != 48 || e.arts.Live() != 1 {
		t.Fatalf("text=%q live=%d", snap.Text, e.arts.Live())
	}

	if rec := e.do(t, http.MethodDelete, "/api/workspaces/"+id, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	if e.arts.Live() != 0 {
		t.Fatalf("live after delete = %d", e.arts.Live())
	}
}

func TestChat_OpenSendClose(t *testing.T) {
	e := newEnv(t, nil)
	body, ct := multipartBody(t, map[string]string{"notes.txt": "The meeting is on Tuesday."}, []string{"notes.txt"})
	rec := e.do(t, http.MethodPost, "/api/chats", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open: %d %s", rec.Code, rec.Body.String())
	}
	opened := decode[chatOpened](t, rec)
	if opened.ID != "chat_1" || !strings.Contains(opened.Greeting, "notes.txt") {
		t.Fatalf("opened = %+v", opened)
	}

	rec = e.doJSON(t, http.MethodPost, "/api/chats/chat_1/messages", map[string]string{"text": "When is the meeting?"})
	if rec.Code != http.StatusOK || decode[map[string]string](t, rec)["reply"] != "The answer is 42." {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}

	if rec := e.doJSON(t, http.MethodPost, "/api/chats/chat_1/messages", map[string]string{"text": "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, "/api/chats/chat_1", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("close: %d", rec.Code)
	}
	rec = e.doJSON(t, http.MethodPost, "/api/chats/chat_1/messages", map[string]string{"text": "again"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("send after close: %d", rec.Code)
	}
}

func TestChat_RequiresOneFile(t *testing.T) {
	e := newEnv(t, nil)
	body, ct := multipartBody(t, map[string]string{"a.txt": "a", "b.txt": "b"}, []string{"a.txt", "b.txt"})
	if rec := e.do(t, http.MethodPost, "/api/chats", body, ct); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthAndTools(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK || decode[map[string]any](t, rec)["status"] != "ok" {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Trace-ID") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("shield stack not applied")
	}

	tools := decode[[]toolreg.Descriptor](t, e.do(t, http.MethodGet, "/api/tools", nil, ""))
	if len(tools) != 8 || tools[0].ID != transform.JSONToCSV {
		t.Fatalf("tools = %d, first %q", len(tools), tools[0].ID)
	}

	// WHAT: without a database the metrics endpoint answers an empty list.
	rec = e.do(t, http.MethodGet, "/api/metrics?name=tool_run_duration_ms", nil, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}
}

// --- MCP ---

func mcpSession(t *testing.T, e *testEnv) *mcp.ClientSession {
	t.Helper()
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = e.srv.MCP().Run(ctx, serverT) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T", name, res.Content[0])
	}
	return text.Text, res.IsError
}

func TestMCP_ConvertData(t *testing.T) {
	e := newEnv(t, nil)
	s := mcpSession(t, e)

	out, isErr := mcpCall(t, s, "docforge_convert_data", map[string]any{"tool": "json-to-csv", "input": `[{"a":1}]`})
	if isErr {
		t.Fatalf("tool error: %s", out)
	}
	var got map[string]string
	json.Unmarshal([]byte(out), &got)
	if got["text"] != "a\n1" || got["ext"] != "csv" {
		t.Fatalf("got %v", got)
	}

	if out, isErr := mcpCall(t, s, "docforge_convert_data", map[string]any{"tool": "echo", "input": "x"}); !isErr {
		t.Fatalf("echo accepted as data tool: %s", out)
	}
}

func TestMCP_RunAndClose(t *testing.T) {
	// WHAT: docforge_run returns a live artifact URL; docforge_close revokes it.
	e := newEnv(t, nil)
	s := mcpSession(t, e)

	out, isErr := mcpCall(t, s, "docforge_run", map[string]any{
		"tool":  "echo",
		"files": []map[string]any{{"name": "a.pdf", "mime": "application/pdf", "content": base64.StdEncoding.EncodeToString([]byte("%PDF"))}},
	})
	if isErr {
		t.Fatalf("tool error: %s", out)
	}
	var resp runResp
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != workspace.StateComplete || resp.Text != "a.pdf=application/pdf" || resp.ArtifactURL == "" {
		t.Fatalf("resp = %+v", resp)
	}

	// Reuse the workspace with another tool.
	out, _ = mcpCall(t, s, "docforge_run", map[string]any{"workspace": resp.Workspace, "tool": "uuid-generator"})
	var again runResp
	json.Unmarshal([]byte(out), &again)
	if again.Workspace != resp.Workspace || again.Text != "id-1" || e.arts.Live() != 1 {
		t.Fatalf("again = %+v live=%d", again, e.arts.Live())
	}

	if out, isErr := mcpCall(t, s, "docforge_close", map[string]any{"workspace": resp.Workspace}); isErr {
		t.Fatalf("close: %s", out)
	}
	if e.arts.Live() != 0 {
		t.Fatalf("live after close = %d", e.arts.Live())
	}
}

func TestMCP_BadBase64(t *testing.T) {
	e := newEnv(t, nil)
	s := mcpSession(t, e)
	out, isErr := mcpCall(t, s, "docforge_run", map[string]any{
		"tool":  "echo",
		"files": []map[string]any{{"name": "a.pdf", "content": "***"}},
	})
	if !isErr || !strings.Contains(out, "base64") {
		t.Fatalf("isErr=%v out=%q", isErr, out)
	}
}

package server

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docforge/kit"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
	"github.com/hazyhaar/docforge/workspace"
)

func (s *Server) registerMCP(srv *mcp.Server) {
	s.registerToolsTool(srv)
	s.registerRunTool(srv)
	s.registerCloseTool(srv)
	s.registerConvertTool(srv)
}

// wrap applies recover, logging and the run timeout to an MCP endpoint.
func (s *Server) wrap(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Recover(), kit.Logging(s.logger, name), kit.Timeout(s.cfg.RunTimeout))(e)
}

func schema(properties map[string]any, required []string) map[string]any {
	out := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// --- docforge_tools ---

type toolsReq struct {
	Category string `json:"category,omitempty"`
}

func (s *Server) registerToolsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docforge_tools",
		Description: "List the available document tools, optionally filtered by category.",
		InputSchema: schema(map[string]any{
			"category": map[string]any{"type": "string", "description": "Category name, e.g. \"Organize PDF\""},
		}, nil),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*toolsReq)
		all := s.cfg.Registry.List()
		if r.Category == "" {
			return map[string]any{"tools": all}, nil
		}
		out := []toolreg.Descriptor{}
		for _, d := range all {
			if string(d.Category) == r.Category {
				out = append(out, d)
			}
		}
		return map[string]any{"tools": out}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.wrap("docforge_tools", endpoint), kit.DecodeArgs[toolsReq])
}

// --- docforge_run ---

type mcpFile struct {
	Name    string `json:"name"`
	MIME    string `json:"mime,omitempty"`
	Content string `json:"content"`
}

type runReq struct {
	Workspace string           `json:"workspace,omitempty"`
	Tool      transform.ToolID `json:"tool"`
	Files     []mcpFile        `json:"files,omitempty"`
	Input     string           `json:"input,omitempty"`
	Params    transform.Params `json:"params"`
}

type runResp struct {
	Workspace   string               `json:"workspace"`
	State       workspace.State      `json:"state"`
	ArtifactURL string               `json:"artifact_url,omitempty"`
	Filename    string               `json:"filename,omitempty"`
	Text        string               `json:"text,omitempty"`
	Note        string               `json:"note,omitempty"`
	Error       *workspace.ErrorInfo `json:"error,omitempty"`
}

func (s *Server) registerRunTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "docforge_run",
		Description: "Run a document tool on base64 files and return the download URL or the text result. " +
			"Pass the returned workspace to reuse it; close it with docforge_close.",
		InputSchema: schema(map[string]any{
			"workspace": map[string]any{"type": "string", "description": "Existing workspace ID"},
			"tool":      map[string]any{"type": "string", "description": "Tool ID from docforge_tools"},
			"files": map[string]any{
				"type": "array",
				"items": schema(map[string]any{
					"name":    map[string]any{"type": "string"},
					"mime":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string", "description": "Base64-encoded file content"},
				}, []string{"name", "content"}),
			},
			"input":  map[string]any{"type": "string", "description": "Free text for text tools"},
			"params": map[string]any{"type": "object", "description": "Tool parameters"},
		}, []string{"tool"}),
	}
	kit.RegisterMCPTool(srv, tool, s.wrap("docforge_run", s.mcpRun), kit.DecodeArgs[runReq])
}

func (s *Server) mcpRun(ctx context.Context, req any) (any, error) {
	r := req.(*runReq)
	files := make([]transform.InputFile, 0, len(r.Files))
	for _, f := range r.Files {
		data, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return nil, fmt.Errorf("file %s: content is not valid base64: %w", f.Name, err)
		}
		files = append(files, transform.InputFile{Name: f.Name, MIME: f.MIME, Data: data})
	}

	ws, err := s.mcpWorkspace(r.Workspace, r.Tool)
	if err != nil {
		return nil, err
	}
	if err := ws.SelectFiles(files); err != nil {
		return nil, err
	}
	if err := ws.SetParams(r.Params, r.Input); err != nil {
		return nil, err
	}
	snap, err := ws.Run(ctx)
	if err != nil {
		return nil, err
	}

	out := runResp{Workspace: snap.ID, State: snap.State, Text: snap.Text, Note: snap.Note, Error: snap.Error}
	if snap.Artifact != nil {
		out.ArtifactURL = snap.Artifact.URL
		out.Filename = snap.Artifact.Filename
	}
	return out, nil
}

// mcpWorkspace reuses id when given, switching its tool if needed.
func (s *Server) mcpWorkspace(id string, tool transform.ToolID) (*workspace.Workspace, error) {
	if id == "" {
		return s.cfg.Workspaces.Create(tool)
	}
	ws, err := s.cfg.Workspaces.Get(id)
	if err != nil {
		return nil, err
	}
	if ws.Snapshot().Tool != tool {
		if err := ws.SwitchTool(tool); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

// --- docforge_close ---

type closeReq struct {
	Workspace string `json:"workspace"`
}

func (s *Server) registerCloseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docforge_close",
		Description: "Close a workspace and revoke its download URL.",
		InputSchema: schema(map[string]any{
			"workspace": map[string]any{"type": "string"},
		}, []string{"workspace"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*closeReq)
		if err := s.cfg.Workspaces.Delete(r.Workspace); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted"}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.wrap("docforge_close", endpoint), kit.DecodeArgs[closeReq])
}

// --- docforge_convert_data ---

type convertReq struct {
	Tool   transform.ToolID `json:"tool"`
	Input  string           `json:"input"`
	Params transform.Params `json:"params"`
}

func (s *Server) registerConvertTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docforge_convert_data",
		Description: "Run a local data or developer tool (json-to-csv, csv-to-json, xml-to-json, json-to-xml, jwt-secret-generator, uuid-generator) on text and return the text.",
		InputSchema: schema(map[string]any{
			"tool":   map[string]any{"type": "string"},
			"input":  map[string]any{"type": "string"},
			"params": map[string]any{"type": "object"},
		}, []string{"tool"}),
	}
	kit.RegisterMCPTool(srv, tool, s.wrap("docforge_convert_data", s.mcpConvert), kit.DecodeArgs[convertReq])
}

func (s *Server) mcpConvert(ctx context.Context, req any) (any, error) {
	r := req.(*convertReq)
	d, ok := s.cfg.Registry.Lookup(r.Tool)
	if !ok {
		return nil, transform.ValidationError(fmt.Sprintf("unknown tool %q", r.Tool))
	}
	if d.Target != transform.TargetLocal || (d.Category != transform.CategoryData && d.Category != transform.CategoryDeveloper) {
		return nil, transform.ValidationError(fmt.Sprintf("%s is not a data tool", r.Tool))
	}
	res := s.cfg.Registry.Dispatch(ctx, transform.WorkItem{Tool: r.Tool, Input: r.Input, Params: r.Params})
	if res.IsError() {
		return nil, res.Err
	}
	return map[string]string{"text": res.Text, "ext": res.Ext}, nil
}

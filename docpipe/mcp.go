package docpipe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docforge/kit"
)

// RegisterMCP adds docforge_extract, docforge_detect and docforge_formats.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "docforge_extract",
		Description: "Extract the text of a document (docx, odt, pdf, md, txt, html, csv, json, xml, source code). Content is base64.",
		InputSchema: object(map[string]any{
			"name":     str("File name, used for format detection"),
			"content":  str("Base64-encoded file content"),
			"sections": map[string]any{"type": "boolean", "description": "Include the structural sections"},
		}, "name", "content"),
	}, p.mcpExtract, kit.DecodeArgs[extractArgs])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "docforge_detect",
		Description: "Detect a document format from its name and, optionally, its base64 content.",
		InputSchema: object(map[string]any{
			"name":    str("File name"),
			"content": str("Optional base64 content for magic-byte sniffing"),
		}, "name"),
	}, p.mcpDetect, kit.DecodeArgs[extractArgs])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "docforge_formats",
		Description: "List the document formats docforge can read.",
		InputSchema: object(map[string]any{}),
	}, func(context.Context, any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}, kit.DecodeArgs[struct{}])
}

func object(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type extractArgs struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Sections bool   `json:"sections,omitempty"`
}

// extractSummary is what an MCP client gets back from docforge_extract.
type extractSummary struct {
	Name         string    `json:"name"`
	Format       Format    `json:"format"`
	Title        string    `json:"title,omitempty"`
	Text         string    `json:"text"`
	SectionCount int       `json:"section_count"`
	Sections     []Section `json:"sections,omitempty"`
	// NeedsOCR flags PDFs whose text layer is missing or garbled.
	NeedsOCR bool `json:"needs_ocr,omitempty"`
}

func (p *Pipeline) mcpExtract(ctx context.Context, req any) (any, error) {
	a := req.(*extractArgs)
	data, err := base64.StdEncoding.DecodeString(a.Content)
	if err != nil {
		return nil, fmt.Errorf("content is not valid base64: %w", err)
	}
	doc, err := p.Extract(ctx, a.Name, data)
	if err != nil && !errors.Is(err, ErrNoText) {
		return nil, err
	}

	out := extractSummary{
		Name:         doc.Name,
		Format:       doc.Format,
		Title:        doc.Title,
		Text:         doc.RawText,
		SectionCount: len(doc.Sections),
		NeedsOCR:     doc.Quality.NeedsOCR(),
	}
	if a.Sections {
		out.Sections = doc.Sections
	}
	return out, nil
}

func (p *Pipeline) mcpDetect(_ context.Context, req any) (any, error) {
	a := req.(*extractArgs)
	var data []byte
	if a.Content != "" {
		var err error
		if data, err = base64.StdEncoding.DecodeString(a.Content); err != nil {
			return nil, fmt.Errorf("content is not valid base64: %w", err)
		}
	}
	format, err := p.Detect(a.Name, data)
	if err != nil {
		return nil, err
	}
	return map[string]any{"format": format}, nil
}

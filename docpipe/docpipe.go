// CLAUDE:SUMMARY Extraction engine: detects format by name and magic bytes, dispatches to per-format parsers over in-memory bytes.
// Package docpipe extracts structured text from uploaded documents held in
// memory.
//
// Supported formats:
//   - .docx  Microsoft Word (word/document.xml)
//   - .odt   OpenDocument Text (content.xml)
//   - .pdf   pdfcpu content streams, with extraction quality scoring
//   - .md    Markdown, heading-aware
//   - .txt   plain text
//   - .html  sanitised with bluemonday, converted to Markdown
//   - .csv, .json, .xml and source files as raw text
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.Extract(ctx, "report.pdf", data)
//	if err == nil && doc.Quality != nil && doc.Quality.NeedsOCR() {
//		// fall back to OCR
//	}
package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrNoText is returned when a document parses but yields no text.
var ErrNoText = errors.New("docpipe: no extractable text")

// ErrUnsupported is returned for formats without a parser.
var ErrUnsupported = errors.New("docpipe: unsupported format")

var pdfMagic = []byte("%PDF-")

var codeExts = map[string]bool{
	".js": true, ".ts": true, ".py": true, ".go": true, ".java": true,
	".c": true, ".cpp": true, ".rs": true, ".rb": true, ".sh": true,
	".css": true, ".sql": true, ".yaml": true, ".yml": true,
}

// Pipeline is the document extraction engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Detect returns the document format from the file name, trusting the PDF
// magic over a wrong extension.
func (p *Pipeline) Detect(name string, data []byte) (Format, error) {
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF, nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".docx":
		return FormatDocx, nil
	case ".odt":
		return FormatODT, nil
	case ".pdf":
		return FormatPDF, nil
	case ".md", ".markdown":
		return FormatMD, nil
	case ".txt", ".text", ".log":
		return FormatTXT, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xml":
		return FormatXML, nil
	}
	if codeExts[ext] {
		return FormatCode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
}

// Extract parses data and returns structured sections. A document that
// parses to empty text returns ErrNoText together with the partial
// document, so callers can still inspect Quality.
func (p *Pipeline) Extract(ctx context.Context, name string, data []byte) (*Document, error) {
	if int64(len(data)) > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(data), p.cfg.MaxFileSize)
	}
	format, err := p.Detect(name, data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug("extracting document", "name", name, "format", format, "size", len(data))

	var sections []Section
	var title string
	var quality *ExtractionQuality

	switch format {
	case FormatDocx:
		title, sections, err = extractDocx(data)
	case FormatODT:
		title, sections, err = extractODT(data)
	case FormatPDF:
		title, sections, quality, err = extractPDF(data)
	case FormatMD:
		title, sections = extractMarkdown(string(data))
	case FormatTXT:
		title, sections = extractText(string(data))
	case FormatHTML:
		title, sections, err = extractHTML(data)
	case FormatCSV, FormatJSON, FormatXML, FormatCode:
		title, sections = extractRaw(string(data), format)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s (%s): %w", name, format, err)
	}

	doc := &Document{
		Name:     name,
		Format:   format,
		Title:    title,
		Sections: sections,
		RawText:  p.truncate(joinSections(sections)),
		Quality:  quality,
	}
	if strings.TrimSpace(doc.RawText) == "" {
		return doc, ErrNoText
	}
	return doc, nil
}

func joinSections(sections []Section) string {
	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if s.Title != "" && s.Title != s.Text {
			sb.WriteString(s.Title)
			sb.WriteByte('\n')
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

func (p *Pipeline) truncate(text string) string {
	limit := p.cfg.MaxTextRunes
	if limit < 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

// SupportedFormats returns all supported format names.
func SupportedFormats() []string {
	return []string{"docx", "odt", "pdf", "md", "txt", "html", "csv", "json", "xml", "code"}
}

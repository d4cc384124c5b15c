// CLAUDE:SUMMARY Shared vocabulary of the dispatchers: tool identifiers, WorkItem inputs and the tagged Result union.
// Package transform defines the unit of work handed to a dispatcher and the
// result shape every dispatcher returns.
//
// A WorkItem is built once per run, consumed by exactly one dispatcher and
// dropped afterwards. A Result is either binary, text or an error; nothing
// else reaches the artifact manager.
package transform

import (
	"context"
	"path/filepath"
	"strings"
)

// ToolID names a registered tool.
type ToolID string

const (
	PDFMerge       ToolID = "pdf-merge"
	PDFSplit       ToolID = "pdf-split"
	PDFOrganize    ToolID = "pdf-organize"
	PDFCompress    ToolID = "pdf-compress"
	PDFRepair      ToolID = "pdf-repair"
	PDFRotate      ToolID = "pdf-rotate"
	PDFPageNumbers ToolID = "pdf-page-numbers"
	PDFWatermark   ToolID = "pdf-watermark"
	PDFProtect     ToolID = "pdf-protect"
	PDFUnlock      ToolID = "pdf-unlock"
	PDFRedact      ToolID = "pdf-redact"
	PDFCompare     ToolID = "pdf-compare"
	JPGToPDF       ToolID = "jpg-to-pdf"
	PDFScan        ToolID = "pdf-scan"
	HTMLToPDF      ToolID = "html-to-pdf"
	ImageConverter ToolID = "image-converter"

	JSONToCSV ToolID = "json-to-csv"
	CSVToJSON ToolID = "csv-to-json"
	XMLToJSON ToolID = "xml-to-json"
	JSONToXML ToolID = "json-to-xml"

	JWTSecretGenerator ToolID = "jwt-secret-generator"
	UUIDGenerator      ToolID = "uuid-generator"

	PDFToWord          ToolID = "pdf-to-word"
	PDFToExcel         ToolID = "pdf-to-excel"
	PDFToPowerPoint    ToolID = "pdf-to-powerpoint"
	PDFOCR             ToolID = "pdf-ocr"
	PDFBankStatement   ToolID = "pdf-bank-statement-converter"
	MagicSummarizer    ToolID = "magic-summarizer"
	UniversalTranslate ToolID = "universal-translator"
	GrammarPolish      ToolID = "grammar-polish"
	CodeMorph          ToolID = "code-morph"
	SmartOCR           ToolID = "smart-ocr"
	TextToSpeech       ToolID = "text-to-speech"
)

// Category groups tools for listing.
type Category string

const (
	CategoryOrganize    Category = "Organize PDF"
	CategoryOptimize    Category = "Optimize PDF"
	CategoryEdit        Category = "Edit PDF"
	CategorySecurity    Category = "PDF Security"
	CategoryConvertTo   Category = "Convert to PDF"
	CategoryConvertFrom Category = "Convert from PDF"
	CategoryImage       Category = "Image Tools"
	CategoryData        Category = "Data Tools"
	CategoryDeveloper   Category = "Developer Tools"
	CategoryAI          Category = "AI Intelligence"
	CategoryAudio       Category = "Audio"
)

// Target is where a tool executes.
type Target string

const (
	TargetLocal Target = "local"
	TargetAI    Target = "ai"
)

// InputFile is an uploaded file held in memory.
type InputFile struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"-"`
}

// Size is the payload length in bytes.
func (f InputFile) Size() int64 { return int64(len(f.Data)) }

// Ext returns the lower-cased extension without the dot.
func (f InputFile) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// Compression tiers.
const (
	TierExtreme     = "extreme"
	TierRecommended = "recommended"
	TierLess        = "less"
)

// Page number placements.
const (
	PlacementBottomLeft   = "bottom-left"
	PlacementBottomCenter = "bottom-center"
	PlacementBottomRight  = "bottom-right"
)

// RedactArea is one opaque rectangle. Page is 0-based; coordinates are PDF
// points measured from the bottom-left corner of the page.
type RedactArea struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Params is the tool-specific parameter bag. Each tool reads the fields it
// needs and ignores the rest.
type Params struct {
	Password       string       `json:"password,omitempty"`
	Text           string       `json:"text,omitempty"`
	Tier           string       `json:"tier,omitempty"`
	TargetLanguage string       `json:"target_language,omitempty"`
	Rotation       int          `json:"rotation,omitempty"`
	Placement      string       `json:"placement,omitempty"`
	OutputFormat   string       `json:"output_format,omitempty"`
	SplitPoints    []int        `json:"split_points,omitempty"`
	Redactions     []RedactArea `json:"redactions,omitempty"`
	PageOrder      []int        `json:"page_order,omitempty"`
	URL            string       `json:"url,omitempty"`

	Length    int   `json:"length,omitempty"`
	Lowercase *bool `json:"lowercase,omitempty"`
	Uppercase *bool `json:"uppercase,omitempty"`
	Digits    *bool `json:"digits,omitempty"`
	Symbols   *bool `json:"symbols,omitempty"`
	Count     int   `json:"count,omitempty"`
}

// WorkItem is one invocation of a tool.
type WorkItem struct {
	Tool    ToolID
	Primary *InputFile
	// Secondary files follow Primary in the given order.
	Secondary []InputFile
	// Input is free text for text-in tools.
	Input  string
	Params Params
}

// Files returns Primary followed by Secondary, in order.
func (w WorkItem) Files() []InputFile {
	var out []InputFile
	if w.Primary != nil {
		out = append(out, *w.Primary)
	}
	return append(out, w.Secondary...)
}

// FileCount is len(Files()) without the copy.
func (w WorkItem) FileCount() int {
	n := len(w.Secondary)
	if w.Primary != nil {
		n++
	}
	return n
}

// ResultKind tags a Result.
type ResultKind string

const (
	ResultBinary ResultKind = "binary"
	ResultText   ResultKind = "text"
	ResultError  ResultKind = "error"
)

// Blob is one binary output.
type Blob struct {
	Data []byte
	// Suffix distinguishes blobs of a multi-output result, e.g. "_part1".
	Suffix string
}

// Result is the tagged outcome of a dispatch.
type Result struct {
	Kind  ResultKind
	Blobs []Blob
	MIME  string
	Text  string
	// Ext is the suggested file extension without the dot.
	Ext string
	// Filename, when set, replaces the name derived from the tool title.
	Filename string
	Note     string
	Err      *Error
}

// Binary builds a single-blob binary result.
func Binary(data []byte, mime, ext string) Result {
	return Result{Kind: ResultBinary, Blobs: []Blob{{Data: data}}, MIME: mime, Ext: ext}
}

// MultiBinary builds a result holding several blobs of the same type.
func MultiBinary(blobs []Blob, mime, ext string) Result {
	return Result{Kind: ResultBinary, Blobs: blobs, MIME: mime, Ext: ext}
}

// Text builds a text result.
func Text(text, ext string) Result {
	return Result{Kind: ResultText, Text: text, MIME: mimeForTextExt(ext), Ext: ext}
}

// Failed builds an error result from any error.
func Failed(err error) Result {
	return Result{Kind: ResultError, Err: AsError(err)}
}

// Named fixes the download filename.
func (r Result) Named(filename string) Result {
	r.Filename = filename
	return r
}

// WithNote attaches a remark.
func (r Result) WithNote(note string) Result {
	r.Note = note
	return r
}

// IsError reports whether r carries an error.
func (r Result) IsError() bool { return r.Kind == ResultError }

func mimeForTextExt(ext string) string {
	switch ext {
	case "md":
		return "text/markdown"
	case "csv":
		return "text/csv"
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	default:
		return "text/plain"
	}
}

// Handler executes one tool.
type Handler func(ctx context.Context, item WorkItem) Result

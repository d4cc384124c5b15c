// CLAUDE:SUMMARY Binary transform dispatcher: pdfcpu-backed page, stamp and security ops, fpdf reports, image conversion and Chrome HTML rendering.
// CLAUDE:DEPENDS transform, toolreg, imgconv, horosafe
// CLAUDE:EXPORTS Dispatcher, New, Config, Renderer
// Package pdfops runs the local binary tools. Every operation takes the input
// bytes, parses them with pdfcpu and returns a transform.Result; nothing
// panics across Run.
package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
)

var disableConfigDir sync.Once

// Config configures the dispatcher.
type Config struct {
	// Renderer turns a URL into a PDF for html-to-pdf. Nil disables the tool
	// at run time with a processing error.
	Renderer Renderer `json:"-" yaml:"-"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type opFunc func(ctx context.Context, item transform.WorkItem) (transform.Result, error)

// Dispatcher executes local binary tools.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	ops    map[transform.ToolID]opFunc
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	cfg.defaults()
	disableConfigDir.Do(api.DisableConfigDir)
	d := &Dispatcher{cfg: cfg, logger: cfg.Logger}
	d.ops = map[transform.ToolID]opFunc{
		transform.PDFMerge:       d.merge,
		transform.PDFSplit:       d.split,
		transform.PDFOrganize:    d.organize,
		transform.PDFCompress:    d.compress,
		transform.PDFRepair:      d.repair,
		transform.PDFRotate:      d.rotate,
		transform.PDFPageNumbers: d.pageNumbers,
		transform.PDFWatermark:   d.watermark,
		transform.PDFProtect:     d.protect,
		transform.PDFUnlock:      d.unlock,
		transform.PDFRedact:      d.redact,
		transform.PDFCompare:     d.compare,
		transform.JPGToPDF:       d.imageToPDF,
		transform.PDFScan:        d.imageToPDF,
		transform.HTMLToPDF:      d.htmlToPDF,
		transform.ImageConverter: d.convertImage,
	}
	return d
}

// Run executes item. Engine panics are recovered into processing errors.
func (d *Dispatcher) Run(ctx context.Context, item transform.WorkItem) (res transform.Result) {
	op, ok := d.ops[item.Tool]
	if !ok {
		return transform.Failed(transform.ValidationError(fmt.Sprintf("pdfops: unknown tool %q", item.Tool)))
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("pdfops: panic", "tool", item.Tool, "panic", r, "stack", string(debug.Stack()))
			res = transform.Failed(transform.ProcessingError(string(item.Tool), fmt.Errorf("panic: %v", r)))
		}
	}()
	if err := ctx.Err(); err != nil {
		return transform.Failed(transform.NewError(transform.KindTimeout, "cancelled before start", err))
	}

	out, err := op(ctx, item)
	if err != nil {
		d.logger.Debug("pdfops: failed", "tool", item.Tool, "error", err)
		return transform.Failed(err)
	}
	return out
}

// Tools describes every tool this dispatcher serves.
func (d *Dispatcher) Tools() []toolreg.Descriptor {
	pdf := []string{".pdf", "application/pdf"}
	images := []string{".jpg", ".jpeg", ".png", "image/jpeg", "image/png"}
	ds := []toolreg.Descriptor{
		{ID: transform.PDFMerge, Title: "Merge PDF", Category: transform.CategoryOrganize,
			Description: "Combine PDFs in the order you want.", MinFiles: 2, Accept: pdf},
		{ID: transform.PDFSplit, Title: "Split PDF", Category: transform.CategoryOrganize,
			Description: "Separate one page or a whole set into independent PDF files.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Requires: []string{toolreg.ParamSplitPoints}},
		{ID: transform.PDFOrganize, Title: "Organize PDF", Category: transform.CategoryOrganize,
			Description: "Sort, delete or duplicate pages of your PDF.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Requires: []string{toolreg.ParamPageOrder}},
		{ID: transform.PDFCompress, Title: "Compress PDF", Category: transform.CategoryOptimize,
			Description: "Reduce file size while optimizing for maximal PDF quality.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Enums: map[string][]string{toolreg.ParamTier: {transform.TierExtreme, transform.TierRecommended, transform.TierLess}}},
		{ID: transform.PDFRepair, Title: "Repair PDF", Category: transform.CategoryOptimize,
			Description: "Recover data from a damaged PDF.", MinFiles: 1, MaxFiles: 1, Accept: pdf},
		{ID: transform.PDFRotate, Title: "Rotate PDF", Category: transform.CategoryEdit,
			Description: "Rotate every page of your PDF.", MinFiles: 1, MaxFiles: 1, Accept: pdf},
		{ID: transform.PDFPageNumbers, Title: "Page Numbers", Category: transform.CategoryEdit,
			Description: "Add page numbers to your PDF.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Enums: map[string][]string{toolreg.ParamPlacement: {transform.PlacementBottomLeft, transform.PlacementBottomCenter, transform.PlacementBottomRight}}},
		{ID: transform.PDFWatermark, Title: "Add Watermark", Category: transform.CategoryEdit,
			Description: "Stamp text over every page of your PDF.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Requires: []string{toolreg.ParamText}},
		{ID: transform.PDFProtect, Title: "Protect PDF", Category: transform.CategorySecurity,
			Description: "Encrypt your PDF with a password.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Requires: []string{toolreg.ParamPassword}},
		{ID: transform.PDFUnlock, Title: "Unlock PDF", Category: transform.CategorySecurity,
			Description: "Remove the password from a PDF you own.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Requires: []string{toolreg.ParamPassword}},
		{ID: transform.PDFRedact, Title: "Redact PDF", Category: transform.CategorySecurity,
			Description: "Black out areas of your PDF.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Requires: []string{toolreg.ParamRedactions}},
		{ID: transform.PDFCompare, Title: "Compare PDF", Category: transform.CategorySecurity,
			Description: "Compare two PDFs and get a report.", MinFiles: 2, MaxFiles: 2, Accept: pdf},
		{ID: transform.JPGToPDF, Title: "JPG to PDF", Category: transform.CategoryConvertTo,
			Description: "Convert an image to a PDF page of the same size.", MinFiles: 1, MaxFiles: 1, Accept: images},
		{ID: transform.PDFScan, Title: "Scan to PDF", Category: transform.CategoryConvertTo,
			Description: "Turn a photographed page into a PDF.", MinFiles: 1, MaxFiles: 1, Accept: images},
		{ID: transform.HTMLToPDF, Title: "HTML to PDF", Category: transform.CategoryConvertTo,
			Description: "Render a web page to PDF.", Requires: []string{toolreg.ParamURL}},
		{ID: transform.ImageConverter, Title: "Image Converter", Category: transform.CategoryImage,
			Description: "Convert images between JPEG, PNG and WEBP.", MinFiles: 1, MaxFiles: 1, Accept: []string{"image/*"},
			Enums: map[string][]string{toolreg.ParamOutputFormat: {"jpeg", "jpg", "png", "webp"}}},
	}
	for i := range ds {
		ds[i].Target = transform.TargetLocal
		ds[i].Handler = d.Run
	}
	return ds
}

func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// pageCount parses data and returns its page count. Failures are parse
// errors naming the file.
func pageCount(f transform.InputFile) (int, error) {
	n, err := api.PageCount(bytes.NewReader(f.Data), newConf())
	if err != nil {
		return 0, transform.ParseError(fmt.Sprintf("%s is not a readable PDF", f.Name), err)
	}
	return n, nil
}

// rewrite runs an engine call from primary bytes into a fresh buffer.
func rewrite(op string, data []byte, fn func(rs io.ReadSeeker, w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(bytes.NewReader(data), &buf); err != nil {
		return nil, transform.ProcessingError(op, err)
	}
	return buf.Bytes(), nil
}

func pdfResult(data []byte) transform.Result {
	return transform.Binary(data, "application/pdf", "pdf")
}

func primary(item transform.WorkItem) (transform.InputFile, error) {
	if item.Primary == nil {
		return transform.InputFile{}, transform.ValidationError("Please select a file.")
	}
	return *item.Primary, nil
}

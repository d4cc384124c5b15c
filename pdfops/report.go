package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/go-pdf/fpdf"

	"github.com/hazyhaar/docforge/imgconv"
	"github.com/hazyhaar/docforge/transform"
)

const compareTitle = "PDF Comparison Report"

// CompareReport is the one-line summary written into the compare PDF.
func CompareReport(pages1, pages2 int) string {
	diff := pages1 - pages2
	if diff < 0 {
		diff = -diff
	}
	return fmt.Sprintf("PDF 1 has %d pages, PDF 2 has %d pages. Differences: %d", pages1, pages2, diff)
}

func (d *Dispatcher) compare(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	files := item.Files()
	if len(files) != 2 {
		return transform.Result{}, transform.ValidationError("Please select exactly 2 PDF files to compare.")
	}
	n1, err := pageCount(files[0])
	if err != nil {
		return transform.Result{}, err
	}
	n2, err := pageCount(files[1])
	if err != nil {
		return transform.Result{}, err
	}
	report := CompareReport(n1, n2)

	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetTitle(compareTitle, true)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 20)
	doc.Text(50, 92, compareTitle)
	doc.SetFont("Helvetica", "", 12)
	doc.Text(50, 142, report)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return transform.Result{}, transform.ProcessingError("compare report", err)
	}
	return pdfResult(buf.Bytes()).WithNote(report), nil
}

func (d *Dispatcher) imageToPDF(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	data := f.Data
	var imageType string
	switch imgconv.Detect(data) {
	case imgconv.KindJPEG:
		imageType = "JPG"
	case imgconv.KindPNG:
		imageType = "PNG"
		if data, err = normalizePNG(data); err != nil {
			return transform.Result{}, err
		}
	default:
		return transform.Result{}, transform.UnsupportedFormatError("Unsupported image format: only JPEG and PNG can be converted to PDF.")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return transform.Result{}, transform.ParseError(f.Name+" is not a readable image", err)
	}
	w, h := float64(cfg.Width), float64(cfg.Height)

	doc := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt", Size: fpdf.SizeType{Wd: w, Ht: h}})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()
	opts := fpdf.ImageOptions{ImageType: imageType}
	doc.RegisterImageOptionsReader("page", opts, bytes.NewReader(data))
	doc.ImageOptions("page", 0, 0, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return transform.Result{}, transform.ProcessingError("image to pdf", err)
	}
	return pdfResult(buf.Bytes()), nil
}

// normalizePNG re-encodes a PNG as 8-bit non-interlaced NRGBA, the subset
// the PDF writer embeds.
func normalizePNG(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, transform.ParseError("decode png", err)
	}
	dst := image.NewNRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, transform.ProcessingError("encode png", err)
	}
	return buf.Bytes(), nil
}

func (d *Dispatcher) convertImage(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	out, o, err := imgconv.Convert(f.Data, item.Params.OutputFormat)
	if err != nil {
		return transform.Result{}, err
	}
	return transform.Binary(out, o.MIME, o.Ext), nil
}

package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/docforge/transform"
)

const (
	watermarkDesc  = "font:Helvetica-Bold, points:50, rot:45, op:0.3, fillc:0.8 0.8 0.8, scale:1 abs, pos:c"
	pageNumberDesc = "font:Helvetica, points:12, rot:0, op:1, fillc:0 0 0, scale:1 abs, pos:%s, off:%d %d"
	redactDesc     = "pos:bl, off:%.2f %.2f, rot:0, op:1, scale:1 abs"

	pageNumberMargin = 30
)

func (d *Dispatcher) watermark(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	if item.Params.Text == "" {
		return transform.Result{}, transform.ValidationError("Please enter the watermark text.")
	}
	if _, err := pageCount(f); err != nil {
		return transform.Result{}, err
	}
	wm, err := api.TextWatermark(item.Params.Text, watermarkDesc, true, false, types.POINTS)
	if err != nil {
		return transform.Result{}, transform.ProcessingError("watermark", err)
	}
	out, err := rewrite("watermark", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
		return api.AddWatermarks(rs, w, nil, wm, newConf())
	})
	if err != nil {
		return transform.Result{}, err
	}
	return pdfResult(out), nil
}

// placementAnchor maps a placement to a pdfcpu anchor and x offset.
func placementAnchor(placement string) (string, int, error) {
	switch placement {
	case transform.PlacementBottomLeft:
		return "bl", pageNumberMargin, nil
	case transform.PlacementBottomCenter, "":
		return "bc", 0, nil
	case transform.PlacementBottomRight:
		return "br", -pageNumberMargin, nil
	}
	return "", 0, transform.ValidationError(fmt.Sprintf("unknown placement %q", placement))
}

func (d *Dispatcher) pageNumbers(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	anchor, dx, err := placementAnchor(item.Params.Placement)
	if err != nil {
		return transform.Result{}, err
	}
	if _, err := pageCount(f); err != nil {
		return transform.Result{}, err
	}
	// %p expands to the current page number.
	wm, err := api.TextWatermark("%p", fmt.Sprintf(pageNumberDesc, anchor, dx, pageNumberMargin), true, false, types.POINTS)
	if err != nil {
		return transform.Result{}, transform.ProcessingError("page numbers", err)
	}
	out, err := rewrite("page numbers", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
		return api.AddWatermarks(rs, w, nil, wm, newConf())
	})
	if err != nil {
		return transform.Result{}, err
	}
	return pdfResult(out), nil
}

// blackPNG is an opaque w x h image used as a redaction patch.
func blackPNG(w, h int) ([]byte, error) {
	// Gray zero value is black.
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Dispatcher) redact(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	n, err := pageCount(f)
	if err != nil {
		return transform.Result{}, err
	}
	if len(item.Params.Redactions) == 0 {
		return transform.Result{}, transform.ValidationError("Please mark at least one area to redact.")
	}

	byPage := make(map[int][]*model.Watermark)
	for _, a := range item.Params.Redactions {
		if a.Page < 0 || a.Page >= n {
			return transform.Result{}, transform.ValidationError(fmt.Sprintf("redaction page %d does not exist (document has %d pages)", a.Page, n))
		}
		if a.Width <= 0 || a.Height <= 0 {
			return transform.Result{}, transform.ValidationError("redaction areas need a positive width and height")
		}
		patch, err := blackPNG(int(math.Ceil(a.Width)), int(math.Ceil(a.Height)))
		if err != nil {
			return transform.Result{}, transform.ProcessingError("redact", err)
		}
		wm, err := api.ImageWatermarkForReader(bytes.NewReader(patch), fmt.Sprintf(redactDesc, a.X, a.Y), true, false, types.POINTS)
		if err != nil {
			return transform.Result{}, transform.ProcessingError("redact", err)
		}
		byPage[a.Page+1] = append(byPage[a.Page+1], wm)
	}

	out, err := rewrite("redact", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
		return api.AddWatermarksSliceMap(rs, w, byPage, newConf())
	})
	if err != nil {
		return transform.Result{}, err
	}
	return pdfResult(out), nil
}

package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/hazyhaar/docforge/transform"
)

// tierQuality is the image quality factor advertised for each tier.
var tierQuality = map[string]float64{
	transform.TierExtreme:     0.3,
	transform.TierRecommended: 0.5,
	transform.TierLess:        0.7,
}

func (d *Dispatcher) compress(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	tier := item.Params.Tier
	if tier == "" {
		tier = transform.TierRecommended
	}
	q, ok := tierQuality[tier]
	if !ok {
		return transform.Result{}, transform.ValidationError(fmt.Sprintf("unknown compression tier %q", tier))
	}
	if _, err := pageCount(f); err != nil {
		return transform.Result{}, err
	}

	out, err := rewrite("compress", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
		return api.Optimize(rs, w, newConf())
	})
	if err != nil {
		return transform.Result{}, err
	}
	note := fmt.Sprintf("Compression level %s (quality %.1f): %d -> %d bytes.", tier, q, len(f.Data), len(out))
	return pdfResult(out).WithNote(note), nil
}

func (d *Dispatcher) repair(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(f.Data), newConf())
	if err != nil {
		return transform.Result{}, transform.ParseError(f.Name+" could not be recovered", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(pctx, &buf); err != nil {
		return transform.Result{}, transform.ProcessingError("repair", err)
	}
	return pdfResult(buf.Bytes()), nil
}

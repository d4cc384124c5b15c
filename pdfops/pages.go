package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/hazyhaar/docforge/transform"
)

func (d *Dispatcher) merge(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	files := item.Files()
	if len(files) < 2 {
		return transform.Result{}, transform.ValidationError("Please select at least 2 PDF files to merge.")
	}
	rsc := make([]io.ReadSeeker, 0, len(files))
	for _, f := range files {
		if _, err := pageCount(f); err != nil {
			return transform.Result{}, err
		}
		rsc = append(rsc, bytes.NewReader(f.Data))
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, newConf()); err != nil {
		return transform.Result{}, transform.ProcessingError("merge", err)
	}
	return pdfResult(buf.Bytes()), nil
}

// splitRanges turns ascending 1-based split points into inclusive page
// ranges covering 1..n.
func splitRanges(points []int, n int) ([][2]int, error) {
	if len(points) == 0 {
		return nil, transform.ValidationError("Please enter at least one split point.")
	}
	ranges := make([][2]int, 0, len(points)+1)
	start := 1
	for _, p := range points {
		if p < start || p > n-1 {
			return nil, transform.ValidationError(fmt.Sprintf("split point %d is out of range: points must be ascending and between 1 and %d", p, n-1))
		}
		ranges = append(ranges, [2]int{start, p})
		start = p + 1
	}
	return append(ranges, [2]int{start, n}), nil
}

func (d *Dispatcher) split(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	n, err := pageCount(f)
	if err != nil {
		return transform.Result{}, err
	}
	ranges, err := splitRanges(item.Params.SplitPoints, n)
	if err != nil {
		return transform.Result{}, err
	}

	blobs := make([]transform.Blob, 0, len(ranges))
	for i, r := range ranges {
		sel := []string{fmt.Sprintf("%d-%d", r[0], r[1])}
		out, err := rewrite("split", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
			return api.Trim(rs, w, sel, newConf())
		})
		if err != nil {
			return transform.Result{}, err
		}
		blobs = append(blobs, transform.Blob{Data: out, Suffix: "_part" + strconv.Itoa(i+1)})
	}
	return transform.MultiBinary(blobs, "application/pdf", "pdf"), nil
}

func (d *Dispatcher) organize(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	n, err := pageCount(f)
	if err != nil {
		return transform.Result{}, err
	}
	if len(item.Params.PageOrder) == 0 {
		return transform.Result{}, transform.ValidationError("Please enter the page order.")
	}
	sel := make([]string, 0, len(item.Params.PageOrder))
	for _, p := range item.Params.PageOrder {
		if p < 1 || p > n {
			return transform.Result{}, transform.ValidationError(fmt.Sprintf("page %d does not exist (document has %d pages)", p, n))
		}
		sel = append(sel, strconv.Itoa(p))
	}
	out, err := rewrite("organize", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
		return api.Collect(rs, w, sel, newConf())
	})
	if err != nil {
		return transform.Result{}, err
	}
	return pdfResult(out), nil
}

// normalizeRotation maps a multiple of 90 into [0, 360). Zero means the
// default quarter turn.
func normalizeRotation(deg int) (int, error) {
	if deg == 0 {
		return 90, nil
	}
	if deg%90 != 0 {
		return 0, transform.ValidationError(fmt.Sprintf("rotation must be a multiple of 90, got %d", deg))
	}
	return ((deg % 360) + 360) % 360, nil
}

func (d *Dispatcher) rotate(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	deg, err := normalizeRotation(item.Params.Rotation)
	if err != nil {
		return transform.Result{}, err
	}
	if _, err := pageCount(f); err != nil {
		return transform.Result{}, err
	}
	if deg == 0 {
		return pdfResult(f.Data), nil
	}
	out, err := rewrite("rotate", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
		return api.Rotate(rs, w, deg, nil, newConf())
	})
	if err != nil {
		return transform.Result{}, err
	}
	return pdfResult(out), nil
}

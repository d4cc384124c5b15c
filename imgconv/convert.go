// Package imgconv re-encodes raster images between JPEG, PNG and WEBP.
package imgconv

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	_ "image/gif"

	"github.com/HugoSmits86/nativewebp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/docforge/transform"
)

// JPEGQuality is the encoder quality for JPEG output.
const JPEGQuality = 92

// Output describes a target format.
type Output struct {
	Format string
	MIME   string
	Ext    string
}

var outputs = map[string]Output{
	"jpeg": {Format: "jpeg", MIME: "image/jpeg", Ext: "jpg"},
	"png":  {Format: "png", MIME: "image/png", Ext: "png"},
	"webp": {Format: "webp", MIME: "image/webp", Ext: "webp"},
}

// Formats lists the accepted output format names.
func Formats() []string { return []string{"jpeg", "png", "webp"} }

// LookupOutput resolves a format name. "jpg" is accepted for "jpeg"; the
// empty string selects PNG.
func LookupOutput(format string) (Output, bool) {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case "":
		f = "png"
	case "jpg":
		f = "jpeg"
	}
	o, ok := outputs[f]
	return o, ok
}

// Decode parses any supported container.
func Decode(data []byte) (image.Image, Kind, error) {
	kind := Detect(data)
	if kind == KindUnknown {
		return nil, kind, transform.UnsupportedFormatError("unrecognised image format")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, kind, transform.ParseError("decode "+kind.String(), err)
	}
	return img, kind, nil
}

// Convert decodes data and encodes it in format. JPEG output has any
// transparency flattened onto white.
func Convert(data []byte, format string) ([]byte, Output, error) {
	out, ok := LookupOutput(format)
	if !ok {
		return nil, Output{}, transform.UnsupportedFormatError(fmt.Sprintf("unsupported output format %q", format))
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, out, err
	}

	var buf bytes.Buffer
	switch out.Format {
	case "jpeg":
		err = jpeg.Encode(&buf, flatten(img, color.White), &jpeg.Options{Quality: JPEGQuality})
	case "png":
		err = png.Encode(&buf, img)
	case "webp":
		err = nativewebp.Encode(&buf, img, nil)
	}
	if err != nil {
		return nil, out, transform.ProcessingError("encode "+out.Format, err)
	}
	return buf.Bytes(), out, nil
}

func flatten(img image.Image, bg color.Color) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

package imgconv

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/hazyhaar/docforge/transform"
)

func pngFixture(t *testing.T, transparent bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			c := color.NRGBA{R: 200, G: 10, B: 10, A: 255}
			if transparent {
				c.A = 0
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
	}{
		{"\xFF\xD8\xFF\xE0rest", KindJPEG},
		{"GIF89a....", KindGIF},
		{"II*\x00....", KindTIFF},
		{"RIFF\x00\x00\x00\x00WEBPVP8L", KindWEBP},
		{"BM\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00", KindBMP},
		{"RIFF\x00\x00\x00\x00WAVEfmt ", KindUnknown},
		{"%PDF-1.7", KindUnknown},
		{"", KindUnknown},
	}
	for _, c := range cases {
		if got := Detect([]byte(c.in)); got != c.want {
			t.Errorf("Detect(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if Detect(pngFixture(t, false)) != KindPNG {
		t.Error("png fixture not detected")
	}
}

func TestConvert_JPEGFlattensAlpha(t *testing.T) {
	// WHAT: A fully transparent PNG becomes a white JPEG.
	// WHY: JPEG has no alpha channel; black backgrounds surprise users.
	out, o, err := Convert(pngFixture(t, true), "jpg")
	if err != nil {
		t.Fatal(err)
	}
	if o.MIME != "image/jpeg" || o.Ext != "jpg" {
		t.Fatalf("output = %+v", o)
	}
	img, kind, err := Decode(out)
	if err != nil || kind != KindJPEG {
		t.Fatalf("decode: kind=%v err=%v", kind, err)
	}
	r, g, b, _ := img.At(1, 1).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Fatalf("pixel = %d,%d,%d, want near white", r>>8, g>>8, b>>8)
	}
}

func TestConvert_WEBPRoundTrip(t *testing.T) {
	out, o, err := Convert(pngFixture(t, false), "webp")
	if err != nil {
		t.Fatal(err)
	}
	if Detect(out) != KindWEBP || o.Ext != "webp" {
		t.Fatalf("kind=%v ext=%s", Detect(out), o.Ext)
	}
	img, _, err := Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
}

func TestConvert_Errors(t *testing.T) {
	if _, _, err := Convert([]byte("not an image"), "png"); !transform.IsKind(err, transform.KindUnsupportedFormat) {
		t.Errorf("garbage input: %v", err)
	}
	if _, _, err := Convert(pngFixture(t, false), "avif"); !transform.IsKind(err, transform.KindUnsupportedFormat) {
		t.Errorf("unknown output: %v", err)
	}
	truncated := pngFixture(t, false)[:20]
	if _, _, err := Convert(truncated, "png"); !transform.IsKind(err, transform.KindParse) {
		t.Errorf("truncated png: %v", err)
	}
}

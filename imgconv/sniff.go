package imgconv

import "bytes"

// Kind is a raster container recognised by its leading bytes.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindGIF
	KindBMP
	KindTIFF
	KindWEBP
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindGIF:
		return "gif"
	case KindBMP:
		return "bmp"
	case KindTIFF:
		return "tiff"
	case KindWEBP:
		return "webp"
	default:
		return "unknown"
	}
}

// MIME returns the media type, or application/octet-stream for KindUnknown.
func (k Kind) MIME() string {
	if k == KindUnknown {
		return "application/octet-stream"
	}
	return "image/" + k.String()
}

var (
	pngSig    = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	jpegSig   = []byte{0xFF, 0xD8, 0xFF}
	gif87Sig  = []byte("GIF87a")
	gif89Sig  = []byte("GIF89a")
	bmpSig    = []byte("BM")
	tiffSigLE = []byte{'I', 'I', 0x2A, 0x00}
	tiffSigBE = []byte{'M', 'M', 0x00, 0x2A}
	riffSig   = []byte("RIFF")
	webpSig   = []byte("WEBP")
)

// Detect identifies the container from the first bytes of data. Short or
// unrecognised input is KindUnknown.
func Detect(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, pngSig):
		return KindPNG
	case bytes.HasPrefix(data, jpegSig):
		return KindJPEG
	case bytes.HasPrefix(data, gif87Sig), bytes.HasPrefix(data, gif89Sig):
		return KindGIF
	case bytes.HasPrefix(data, tiffSigLE), bytes.HasPrefix(data, tiffSigBE):
		return KindTIFF
	case len(data) >= 12 && bytes.HasPrefix(data, riffSig) && bytes.Equal(data[8:12], webpSig):
		return KindWEBP
	case len(data) >= 14 && bytes.HasPrefix(data, bmpSig):
		return KindBMP
	default:
		return KindUnknown
	}
}

package artifact

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"

	"github.com/hazyhaar/docforge/transform"
)

// Payload flattens a non-error Result into the bytes, MIME type and filename
// to publish. baseName is the filename without extension. Several blobs are
// bundled into one ZIP archive, one entry per blob. A Result carrying its
// own Filename keeps it.
func Payload(res transform.Result, baseName string) ([]byte, string, string, error) {
	switch res.Kind {
	case transform.ResultText:
		if res.Filename != "" {
			return []byte(res.Text), res.MIME, res.Filename, nil
		}
		return []byte(res.Text), res.MIME, withExt(baseName, res.Ext), nil
	case transform.ResultBinary:
		if len(res.Blobs) == 0 {
			return nil, "", "", fmt.Errorf("artifact: binary result without blobs")
		}
		if len(res.Blobs) == 1 {
			if res.Filename != "" {
				return res.Blobs[0].Data, res.MIME, res.Filename, nil
			}
			return res.Blobs[0].Data, res.MIME, withExt(baseName+res.Blobs[0].Suffix, res.Ext), nil
		}
		data, err := zipBlobs(res, baseName)
		if err != nil {
			return nil, "", "", err
		}
		return data, "application/zip", baseName + ".zip", nil
	default:
		return nil, "", "", fmt.Errorf("artifact: cannot publish %s result", res.Kind)
	}
}

// SetResult publishes res into the slot.
func (s *Slot) SetResult(res transform.Result, baseName string) (*Artifact, error) {
	data, mime, filename, err := Payload(res, baseName)
	if err != nil {
		return nil, err
	}
	return s.Set(data, mime, filename), nil
}

func zipBlobs(res transform.Result, baseName string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, b := range res.Blobs {
		suffix := b.Suffix
		if suffix == "" {
			suffix = fmt.Sprintf("_%d", i+1)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     withExt(baseName+suffix, res.Ext),
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return nil, fmt.Errorf("artifact: zip entry: %w", err)
		}
		if _, err := w.Write(b.Data); err != nil {
			return nil, fmt.Errorf("artifact: zip write: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("artifact: zip close: %w", err)
	}
	return buf.Bytes(), nil
}

func withExt(name, ext string) string {
	if ext == "" {
		return name
	}
	return name + "." + ext
}

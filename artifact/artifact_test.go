package artifact

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/transform"
)

func newTestManager() *Manager {
	return NewManager(Config{BaseURL: "http://docs.test/", NewID: idgen.Sequence("art_")})
}

func TestPublish_URL(t *testing.T) {
	m := newTestManager()
	a := m.Publish([]byte("%PDF-1.7"), "application/pdf", "Merge_PDF_result.pdf")
	if a.URL != "http://docs.test/api/artifacts/art_1" {
		t.Fatalf("URL = %q", a.URL)
	}
	if a.Size != 8 || m.Live() != 1 {
		t.Fatalf("size=%d live=%d", a.Size, m.Live())
	}
}

func TestRevoke_Idempotent(t *testing.T) {
	// WHAT: A second revoke on the same artifact is a no-op.
	// WHY: Reset and teardown may both try to release the same handle.
	m := newTestManager()
	a := m.Publish([]byte("x"), "text/plain", "a.txt")
	m.Revoke(a)
	m.Revoke(a)
	m.Revoke(nil)
	if m.Live() != 0 {
		t.Fatalf("live = %d", m.Live())
	}
	if _, ok := m.Open(a.Handle); ok {
		t.Fatal("revoked handle still resolves")
	}
}

func TestReplace_RevokesOld(t *testing.T) {
	// WHAT: After Replace the old handle is dead and exactly one is live.
	m := newTestManager()
	old := m.Publish([]byte("one"), "text/plain", "one.txt")
	cur := m.Replace(old, []byte("two"), "text/plain", "two.txt")

	if m.IsLive(old) {
		t.Fatal("old artifact still live")
	}
	if !m.IsLive(cur) || m.Live() != 1 {
		t.Fatalf("live = %d", m.Live())
	}
	m.Revoke(old)
	if m.Live() != 1 {
		t.Fatal("revoking a replaced artifact touched the new one")
	}
}

func TestSlot_SingleLiveHandle(t *testing.T) {
	// WHAT: Many Sets on one slot never leave more than one handle live.
	// WHY: Every new result must release the previous object handle.
	m := newTestManager()
	s := m.NewSlot()
	for i := 0; i < 10; i++ {
		s.Set([]byte{byte(i)}, "application/octet-stream", "r.bin")
		if m.Live() != 1 {
			t.Fatalf("iteration %d: live = %d", i, m.Live())
		}
	}
	s.Clear()
	s.Clear()
	if m.Live() != 0 || s.Current() != nil {
		t.Fatalf("after clear: live=%d current=%v", m.Live(), s.Current())
	}
}

func TestSlot_Concurrent(t *testing.T) {
	m := NewManager(Config{})
	slots := make([]*Slot, 8)
	for i := range slots {
		slots[i] = m.NewSlot()
	}
	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(s *Slot) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Set([]byte("x"), "text/plain", "x.txt")
			}
		}(s)
	}
	wg.Wait()
	if m.Live() != len(slots) {
		t.Fatalf("live = %d, want %d", m.Live(), len(slots))
	}
	m.Close()
	if m.Live() != 0 {
		t.Fatalf("after Close: live = %d", m.Live())
	}
}

func TestPayload_Text(t *testing.T) {
	data, mime, name, err := Payload(transform.Text("a,b\n1,2", "csv"), "PDF_to_Excel_result")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a,b\n1,2" || mime != "text/csv" || name != "PDF_to_Excel_result.csv" {
		t.Fatalf("got %q %q %q", data, mime, name)
	}
}

func TestPayload_MultiBlobZip(t *testing.T) {
	// WHAT: Split output with several documents is bundled into a ZIP.
	res := transform.MultiBinary([]transform.Blob{
		{Data: []byte("first"), Suffix: "_part1"},
		{Data: []byte("second"), Suffix: "_part2"},
	}, "application/pdf", "pdf")
	data, mime, name, err := Payload(res, "Split_PDF_result")
	if err != nil {
		t.Fatal(err)
	}
	if mime != "application/zip" || name != "Split_PDF_result.zip" {
		t.Fatalf("mime=%q name=%q", mime, name)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 || zr.File[1].Name != "Split_PDF_result_part2.pdf" {
		t.Fatalf("entries: %v", zr.File)
	}
	rc, _ := zr.File[1].Open()
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "second" {
		t.Fatalf("entry body = %q", body)
	}
}

func TestPayload_ErrorResult(t *testing.T) {
	if _, _, _, err := Payload(transform.Failed(transform.ValidationError("x")), "r"); err == nil {
		t.Fatal("expected error for error result")
	}
}

func TestHandler_ServeAndRevoke(t *testing.T) {
	// WHAT: A live handle downloads; once revoked it 404s.
	// WHY: The URL must never outlive the artifact.
	m := newTestManager()
	r := chi.NewRouter()
	r.Mount("/api/artifacts", m.Handler())

	a := m.Publish([]byte("hello"), "text/plain", "My \"notes\".txt")

	req := httptest.NewRequest(http.MethodGet, "/api/artifacts/"+a.Handle, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || strings.Contains(cd, `\"`) {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	m.Revoke(a)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/artifacts/"+a.Handle, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("after revoke: status=%d", rec.Code)
	}
}

func TestPayload_FixedFilename(t *testing.T) {
	res := transform.Binary([]byte("RIFF"), "audio/wav", "wav").Named("speech.wav")
	_, mime, name, err := Payload(res, "Text_to_Speech_result")
	if err != nil {
		t.Fatal(err)
	}
	if name != "speech.wav" || mime != "audio/wav" {
		t.Fatalf("name=%q mime=%q", name, mime)
	}
}

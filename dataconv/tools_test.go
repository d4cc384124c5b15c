package dataconv

import (
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
)

func newRegistry(t *testing.T) *toolreg.Registry {
	t.Helper()
	r, err := toolreg.New(Tools{NewUUID: idgen.Sequence("id-")})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestTools_ConvertTextOrFile(t *testing.T) {
	// WHAT: Typed text wins; an uploaded file is used when no text is given.
	r := newRegistry(t)
	res := r.Dispatch(context.Background(), transform.WorkItem{Tool: transform.CSVToJSON, Input: "a\n1"})
	if res.IsError() || res.Ext != "json" || res.MIME != "application/json" {
		t.Fatalf("text input: %+v", res)
	}

	file := &transform.InputFile{Name: "doc.xml", Data: []byte("<r><a>1</a></r>")}
	res = r.Dispatch(context.Background(), transform.WorkItem{Tool: transform.XMLToJSON, Primary: file})
	if res.IsError() || !strings.Contains(res.Text, `"a": "1"`) {
		t.Fatalf("file input: %+v", res)
	}
}

func TestTools_NoInput(t *testing.T) {
	r := newRegistry(t)
	res := r.Dispatch(context.Background(), transform.WorkItem{Tool: transform.JSONToCSV, Input: "  "})
	if !res.IsError() || res.Err.Kind != transform.KindValidation {
		t.Fatalf("got %+v", res)
	}
}

func TestTools_EncoderErrorsPassThrough(t *testing.T) {
	// WHAT: Encoder failures keep their kind and produce no text.
	r := newRegistry(t)
	res := r.Dispatch(context.Background(), transform.WorkItem{Tool: transform.JSONToCSV, Input: "[]"})
	if !res.IsError() || res.Err.Kind != transform.KindEmptyInput || res.Text != "" {
		t.Fatalf("got %+v", res)
	}
}

func TestTools_WrongFileType(t *testing.T) {
	r := newRegistry(t)
	file := &transform.InputFile{Name: "photo.png", Data: []byte("x")}
	res := r.Dispatch(context.Background(), transform.WorkItem{Tool: transform.CSVToJSON, Primary: file})
	if !res.IsError() || res.Err.Kind != transform.KindValidation {
		t.Fatalf("got %+v", res)
	}
}

func TestTools_Secret(t *testing.T) {
	r := newRegistry(t)
	off := false
	item := transform.WorkItem{Tool: transform.JWTSecretGenerator}
	item.Params.Length = 48
	item.Params.Symbols = &off
	res := r.Dispatch(context.Background(), item)
	if res.IsError() || len(res.Text) != 48 || strings.ContainsAny(res.Text, symbolChars) {
		t.Fatalf("got %+v", res)
	}
	if res.Filename != "jwt_secret.txt" {
		t.Fatalf("filename = %q", res.Filename)
	}

	item.Params.Lowercase, item.Params.Uppercase, item.Params.Digits = &off, &off, &off
	if res := r.Dispatch(context.Background(), item); !res.IsError() || res.Err.Kind != transform.KindValidation {
		t.Fatalf("empty charset: %+v", res)
	}
}

func TestTools_UUIDCount(t *testing.T) {
	r := newRegistry(t)
	item := transform.WorkItem{Tool: transform.UUIDGenerator}
	item.Params.Count = 3
	res := r.Dispatch(context.Background(), item)
	if res.Text != "id-1\nid-2\nid-3" {
		t.Fatalf("got %q", res.Text)
	}
	item.Params.Count = MaxUUIDCount + 1
	if res := r.Dispatch(context.Background(), item); !res.IsError() {
		t.Fatal("count above limit accepted")
	}
}

func TestTools_AllLocal(t *testing.T) {
	for _, d := range (Tools{}).Tools() {
		if d.Target != transform.TargetLocal || d.Handler == nil {
			t.Errorf("%s: target=%s handler=%v", d.ID, d.Target, d.Handler != nil)
		}
	}
}

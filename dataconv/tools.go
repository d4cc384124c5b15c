package dataconv

import (
	"context"
	"strings"

	"github.com/hazyhaar/docforge/idgen"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
)

// MaxUUIDCount bounds one uuid-generator run.
const MaxUUIDCount = 1000

// Tools binds the encoders and generators to their tool IDs. They run
// locally and never touch the network.
type Tools struct {
	// NewUUID defaults to idgen.UUIDv7.
	NewUUID idgen.Generator
}

// Tools returns the data and developer tool descriptors.
func (t Tools) Tools() []toolreg.Descriptor {
	ds := []toolreg.Descriptor{
		{ID: transform.JSONToCSV, Title: "JSON to CSV", Category: transform.CategoryData,
			Description: "Flatten an array of JSON objects into CSV.", MaxFiles: 1, Accept: []string{".json", "application/json"},
			Handler: convert("csv", func(in string) (string, error) { return JSONToCSV([]byte(in)) })},
		{ID: transform.CSVToJSON, Title: "CSV to JSON", Category: transform.CategoryData,
			Description: "Turn CSV rows into an array of JSON objects.", MaxFiles: 1, Accept: []string{".csv", "text/csv"},
			Handler: convert("json", CSVToJSON)},
		{ID: transform.XMLToJSON, Title: "XML to JSON", Category: transform.CategoryData,
			Description: "Map an XML document to JSON.", MaxFiles: 1, Accept: []string{".xml", "application/xml", "text/xml"},
			Handler: convert("json", XMLToJSON)},
		{ID: transform.JSONToXML, Title: "JSON to XML", Category: transform.CategoryData,
			Description: "Map a JSON object to XML.", MaxFiles: 1, Accept: []string{".json", "application/json"},
			Handler: convert("xml", func(in string) (string, error) { return JSONToXML([]byte(in)) })},
		{ID: transform.JWTSecretGenerator, Title: "JWT Secret Generator", Category: transform.CategoryDeveloper,
			Description: "Generate a random signing secret.", Handler: secretTool},
		{ID: transform.UUIDGenerator, Title: "UUID Generator", Category: transform.CategoryDeveloper,
			Description: "Generate time-ordered UUIDs.", Handler: t.uuidTool},
	}
	for i := range ds {
		ds[i].Target = transform.TargetLocal
	}
	return ds
}

// textInput prefers the typed text and falls back to the uploaded file.
func textInput(item transform.WorkItem) (string, error) {
	if strings.TrimSpace(item.Input) != "" {
		return item.Input, nil
	}
	if item.Primary != nil && len(item.Primary.Data) > 0 {
		return string(item.Primary.Data), nil
	}
	return "", transform.ValidationError("Please enter some text or select a file.")
}

func convert(ext string, fn func(string) (string, error)) transform.Handler {
	return func(ctx context.Context, item transform.WorkItem) transform.Result {
		in, err := textInput(item)
		if err != nil {
			return transform.Failed(err)
		}
		if err := ctx.Err(); err != nil {
			return transform.Failed(transform.ProcessingError("conversion cancelled", err))
		}
		out, err := fn(in)
		if err != nil {
			return transform.Failed(err)
		}
		return transform.Text(out, ext)
	}
}

func secretTool(_ context.Context, item transform.WorkItem) transform.Result {
	p := item.Params
	opts := DefaultSecretOptions()
	if p.Length > 0 {
		opts.Length = p.Length
	}
	opts.Lowercase = flag(p.Lowercase, opts.Lowercase)
	opts.Uppercase = flag(p.Uppercase, opts.Uppercase)
	opts.Digits = flag(p.Digits, opts.Digits)
	opts.Symbols = flag(p.Symbols, opts.Symbols)

	s, err := Secret(opts)
	if err != nil {
		return transform.Failed(err)
	}
	return transform.Text(s, "txt").Named("jwt_secret.txt")
}

func (t Tools) uuidTool(_ context.Context, item transform.WorkItem) transform.Result {
	n := item.Params.Count
	if n <= 0 {
		n = 1
	}
	if n > MaxUUIDCount {
		return transform.Failed(transform.ValidationError("count must not exceed 1000"))
	}
	gen := t.NewUUID
	if gen == nil {
		gen = idgen.UUIDv7()
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = gen()
	}
	return transform.Text(strings.Join(ids, "\n"), "txt").Named("uuids.txt")
}

func flag(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

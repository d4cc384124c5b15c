// CLAUDE:SUMMARY Tool registry: descriptors, category listing, pre-dispatch validation gates and routing to dispatcher handlers.
// Package toolreg holds the catalogue of tools. Each dispatcher contributes
// descriptors through Tools(); the registry validates a WorkItem against the
// descriptor before anything is dispatched.
package toolreg

import (
	"context"
	"fmt"
	"mime"
	"slices"
	"strings"
	"sync"

	"github.com/hazyhaar/docforge/transform"
)

// Parameter names used in Descriptor.Requires and Descriptor.Enums.
const (
	ParamPassword       = "password"
	ParamText           = "text"
	ParamURL            = "url"
	ParamSplitPoints    = "split_points"
	ParamTargetLanguage = "target_language"
	ParamPageOrder      = "page_order"
	ParamRedactions     = "redactions"
	ParamTier           = "tier"
	ParamPlacement      = "placement"
	ParamOutputFormat   = "output_format"
)

// Descriptor is the static description of one tool.
type Descriptor struct {
	ID          transform.ToolID   `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Category    transform.Category `json:"category"`
	Target      transform.Target   `json:"target"`

	// MinFiles is the number of files required. MaxFiles bounds it; 0 means
	// no upper bound.
	MinFiles int `json:"min_files"`
	MaxFiles int `json:"max_files,omitempty"`

	// Accept lists accepted extensions (".pdf") or media types
	// ("image/*"). Empty accepts anything.
	Accept []string `json:"accept,omitempty"`

	// TextInput marks tools that read WorkItem.Input.
	TextInput bool `json:"text_input,omitempty"`

	Requires []string            `json:"requires,omitempty"`
	Enums    map[string][]string `json:"enums,omitempty"`

	Handler transform.Handler `json:"-"`
}

// Source contributes descriptors. Dispatchers implement it.
type Source interface {
	Tools() []Descriptor
}

// Registry is the set of known tools, listed in registration order.
type Registry struct {
	mu    sync.RWMutex
	byID  map[transform.ToolID]Descriptor
	order []transform.ToolID
}

// New builds a registry from the given sources.
func New(sources ...Source) (*Registry, error) {
	r := &Registry{byID: make(map[transform.ToolID]Descriptor)}
	for _, s := range sources {
		if err := r.Register(s.Tools()...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds descriptors. Duplicate IDs and descriptors without a
// handler are rejected.
func (r *Registry) Register(ds ...Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		if d.ID == "" {
			return fmt.Errorf("toolreg: descriptor without id")
		}
		if d.Handler == nil {
			return fmt.Errorf("toolreg: %s: no handler", d.ID)
		}
		if _, dup := r.byID[d.ID]; dup {
			return fmt.Errorf("toolreg: %s: already registered", d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return nil
}

// Lookup finds a descriptor by tool ID.
func (r *Registry) Lookup(id transform.ToolID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// List returns every descriptor in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// ByCategory groups descriptors, keeping registration order inside each
// group. Categories appear in order of first registration.
func (r *Registry) ByCategory() ([]transform.Category, map[transform.Category][]Descriptor) {
	var cats []transform.Category
	groups := make(map[transform.Category][]Descriptor)
	for _, d := range r.List() {
		if _, seen := groups[d.Category]; !seen {
			cats = append(cats, d.Category)
		}
		groups[d.Category] = append(groups[d.Category], d)
	}
	return cats, groups
}

// Dispatch validates item and hands it to the tool's handler.
func (r *Registry) Dispatch(ctx context.Context, item transform.WorkItem) transform.Result {
	d, ok := r.Lookup(item.Tool)
	if !ok {
		return transform.Failed(transform.ValidationError(fmt.Sprintf("unknown tool %q", item.Tool)))
	}
	if err := Validate(d, item); err != nil {
		return transform.Failed(err)
	}
	return d.Handler(ctx, item)
}

// Validate applies the descriptor's gates. It returns a validation error
// describing the first failed gate.
func Validate(d Descriptor, item transform.WorkItem) error {
	n := item.FileCount()
	switch {
	case d.MinFiles > 0 && n < d.MinFiles:
		if d.MinFiles == 1 {
			return transform.ValidationError("Please select a file.")
		}
		if d.MaxFiles == d.MinFiles {
			return transform.ValidationError(fmt.Sprintf("Please select exactly %d files.", d.MinFiles))
		}
		return transform.ValidationError(fmt.Sprintf("Please select at least %d files.", d.MinFiles))
	case d.MaxFiles > 0 && n > d.MaxFiles:
		if d.MaxFiles == d.MinFiles {
			return transform.ValidationError(fmt.Sprintf("Please select exactly %d files.", d.MaxFiles))
		}
		return transform.ValidationError(fmt.Sprintf("Please select at most %d files.", d.MaxFiles))
	}

	if len(d.Accept) > 0 {
		for _, f := range item.Files() {
			if !Accepts(d.Accept, f) {
				return transform.ValidationError(fmt.Sprintf("%s: file type not accepted by %s", f.Name, d.Title))
			}
		}
	}

	if d.TextInput && strings.TrimSpace(item.Input) == "" {
		return transform.ValidationError("Please enter some text.")
	}

	for _, p := range d.Requires {
		if !present(p, item.Params) {
			return transform.ValidationError(requiredMessage(p))
		}
	}

	for p, allowed := range d.Enums {
		v := enumValue(p, item.Params)
		if v != "" && !slices.Contains(allowed, v) {
			return transform.ValidationError(fmt.Sprintf("%s must be one of %s", p, strings.Join(allowed, ", ")))
		}
	}
	return nil
}

// Accepts reports whether f matches one of the accept patterns.
func Accepts(accept []string, f transform.InputFile) bool {
	ext := "." + f.Ext()
	media := f.MIME
	if media == "" {
		media = mime.TypeByExtension(ext)
	}
	if i := strings.IndexByte(media, ';'); i >= 0 {
		media = media[:i]
	}
	media = strings.ToLower(strings.TrimSpace(media))

	for _, a := range accept {
		a = strings.ToLower(a)
		switch {
		case strings.HasPrefix(a, "."):
			if ext == a {
				return true
			}
		case strings.HasSuffix(a, "/*"):
			if strings.HasPrefix(media, strings.TrimSuffix(a, "*")) {
				return true
			}
		case media == a:
			return true
		}
	}
	return false
}

func present(param string, p transform.Params) bool {
	switch param {
	case ParamPassword:
		return p.Password != ""
	case ParamText:
		return strings.TrimSpace(p.Text) != ""
	case ParamURL:
		return strings.TrimSpace(p.URL) != ""
	case ParamSplitPoints:
		return len(p.SplitPoints) > 0
	case ParamTargetLanguage:
		return strings.TrimSpace(p.TargetLanguage) != ""
	case ParamPageOrder:
		return len(p.PageOrder) > 0
	case ParamRedactions:
		return len(p.Redactions) > 0
	default:
		return enumValue(param, p) != ""
	}
}

func enumValue(param string, p transform.Params) string {
	switch param {
	case ParamTier:
		return p.Tier
	case ParamPlacement:
		return p.Placement
	case ParamOutputFormat:
		return p.OutputFormat
	}
	return ""
}

func requiredMessage(param string) string {
	switch param {
	case ParamPassword:
		return "Please enter a password."
	case ParamText:
		return "Please enter the watermark text."
	case ParamURL:
		return "Please enter a URL."
	case ParamSplitPoints:
		return "Please enter at least one split point."
	case ParamTargetLanguage:
		return "Please choose a target language."
	case ParamPageOrder:
		return "Please enter the page order."
	case ParamRedactions:
		return "Please mark at least one area to redact."
	}
	return param + " is required"
}

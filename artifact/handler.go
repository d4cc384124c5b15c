package artifact

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docforge/horosafe"
)

// Handler serves GET /{handle} for live artifacts. Mount it under
// Config.PathPrefix. Revoked and unknown handles get 404.
func (m *Manager) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/{handle}", m.serveArtifact)
	return r
}

func (m *Manager) serveArtifact(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if horosafe.ValidateIdentifier(handle) != nil {
		http.NotFound(w, r)
		return
	}
	a, ok := m.Open(handle)
	if !ok {
		http.NotFound(w, r)
		return
	}

	name := horosafe.SafeFilename(a.Filename, "download")
	w.Header().Set("Content-Type", a.MIME)
	w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(a.Bytes())
	}
}

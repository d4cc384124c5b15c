package shield

import "net/http"

// HeadToGet serves HEAD through the GET routes. net/http drops the body.
// Artifact downloads rely on it for size probes.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

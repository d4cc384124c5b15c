package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hazyhaar/docforge/aiops"
	"github.com/hazyhaar/docforge/shield"
	"github.com/hazyhaar/docforge/transform"
	"github.com/hazyhaar/docforge/workspace"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind string, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error(), "kind": kind})
}

// fail maps err to a status code and writes it. Server-side failures are
// logged with the request's trace logger.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := classify(err)
	if code >= http.StatusInternalServerError {
		shield.GetLogger(r.Context()).Error("request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}
	var te *transform.Error
	if errors.As(err, &te) {
		err = errors.New(te.Detail())
	}
	writeError(w, code, kind, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, workspace.ErrNotFound), errors.Is(err, aiops.ErrChatNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, workspace.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, workspace.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, workspace.ErrClosed):
		return http.StatusGone, "closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(transform.KindTimeout)
	}

	te := transform.AsError(err)
	return statusForKind(te.Kind), string(te.Kind)
}

func statusForKind(k transform.Kind) int {
	switch k {
	case transform.KindValidation:
		return http.StatusBadRequest
	case transform.KindParse, transform.KindUnsupportedFormat, transform.KindEmptyInput, transform.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case transform.KindNetwork, transform.KindRemote:
		return http.StatusBadGateway
	case transform.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

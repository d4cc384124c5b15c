package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docforge/transform"
	"github.com/hazyhaar/docforge/workspace"
)

type toolReq struct {
	Tool transform.ToolID `json:"tool"`
}

type paramsReq struct {
	Params transform.Params `json:"params"`
	Input  string           `json:"input"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return transform.ValidationError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// workspaceFrom resolves {id} or writes the 404.
func (s *Server) workspaceFrom(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := s.cfg.Workspaces.Get(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return nil, false
	}
	return ws, true
}

func (s *Server) listWorkspaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Workspaces.List())
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req toolReq
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ws, err := s.cfg.Workspaces.Create(req.Tool)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws.Snapshot())
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

func (s *Server) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Workspaces.Delete(chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFrom(w, r)
	if !ok {
		return
	}
	files, err := readMultipartFiles(r, "file", s.cfg.MaxMemory)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, string(transform.KindValidation), err)
			return
		}
		fail(w, r, err)
		return
	}
	if err := ws.SelectFiles(files); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

func (s *Server) setParams(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFrom(w, r)
	if !ok {
		return
	}
	var req paramsReq
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := ws.SetParams(req.Params, req.Input); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

// runWorkspace runs synchronously. A failed dispatch is still a 200: the
// snapshot carries state "error" and the error detail. Refusals map to 4xx.
func (s *Server) runWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()

	snap, err := ws.Run(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) resetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFrom(w, r)
	if !ok {
		return
	}
	if err := ws.Reset(); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

func (s *Server) switchTool(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFrom(w, r)
	if !ok {
		return
	}
	var req toolReq
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := ws.SwitchTool(req.Tool); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

// readMultipartFiles reads every part named field, in upload order.
func readMultipartFiles(r *http.Request, field string, maxMemory int64) ([]transform.InputFile, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, transform.ValidationError(fmt.Sprintf("invalid multipart body: %v", err))
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[field]
	files := make([]transform.InputFile, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) (transform.InputFile, error) {
	rc, err := fh.Open()
	if err != nil {
		return transform.InputFile{}, fmt.Errorf("open part %s: %w", fh.Filename, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return transform.InputFile{}, fmt.Errorf("read part %s: %w", fh.Filename, err)
	}
	return transform.InputFile{Name: filepath.Base(fh.Filename), MIME: partMIME(fh), Data: data}, nil
}

func partMIME(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}

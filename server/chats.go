package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docforge/aiops"
	"github.com/hazyhaar/docforge/transform"
)

type chatOpened struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Greeting string `json:"greeting"`
}

type messageReq struct {
	Text string `json:"text"`
}

func (s *Server) openChat(w http.ResponseWriter, r *http.Request) {
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
	if len(files) != 1 {
		fail(w, r, transform.ValidationError("Upload exactly one document to chat with."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()
	sess, err := s.cfg.Chats.Open(ctx, files[0])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chatOpened{ID: sess.ID, Name: sess.Name, Greeting: sess.Greeting})
}

func (s *Server) sendChat(w http.ResponseWriter, r *http.Request) {
	var req messageReq
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		fail(w, r, transform.ValidationError("Message is empty."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()
	reply, err := s.cfg.Chats.Send(ctx, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) closeChat(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Chats.Close(chi.URLParam(r, "id")) {
		fail(w, r, aiops.ErrChatNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

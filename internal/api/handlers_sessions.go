package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/synapse/internal/library"
	"github.com/dgallion1/synapse/internal/session"
	"github.com/dgallion1/synapse/internal/viewer"
	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	DocumentID  string   `json:"document_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		jsonError(w, "document_id is required", http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Create(req.DocumentID, req.DocumentIDs)
	switch {
	case errors.Is(err, library.ErrNotFound):
		jsonError(w, "document not found", http.StatusNotFound)
		return
	case errors.Is(err, library.ErrNotReady):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, session.ErrInvalidScope):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := sess.Info()
	writeJSON(w, http.StatusCreated, map[string]any{
		"session":    info,
		"events_url": "/api/sessions/" + info.ID + "/events",
		"stream_url": "/api/sessions/" + info.ID + "/stream",
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

// lookupSession resolves the {sessionID} parameter, writing a 404 when it
// is unknown.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(id); err != nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// eventsRequest accepts either a single event or a batch under "events".
type eventsRequest struct {
	session.BrowserEvent
	Events []session.BrowserEvent `json:"events,omitempty"`
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req eventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	events := req.Events
	if len(events) == 0 {
		events = []session.BrowserEvent{req.BrowserEvent}
	}

	for _, ev := range events {
		if err := sess.HandleEvent(ev); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, sess.Info())
}

func (s *Server) handleExitSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.ExitSelection()
	writeJSON(w, http.StatusOK, sess.Info())
}

type gotoRequest struct {
	Page int `json:"page"`
}

func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req gotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Page < 1 {
		jsonError(w, "page must be at least 1", http.StatusBadRequest)
		return
	}

	if err := sess.Goto(r.Context(), req.Page); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, viewer.ErrNotReady) {
			code = http.StatusConflict
		}
		jsonError(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": req.Page})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	c := s.hub.NewClient(sess.ID)
	defer s.hub.Close(c)
	s.hub.ServeHTTP(w, r, c)
}

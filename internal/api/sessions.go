package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/question"
	"github.com/sabiprep/sabiprep/internal/session"
)

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id := auth.FromContext(r.Context())
	if id.Authenticated() {
		req.UserID = id.UserID
	} else {
		req.DeviceID = auth.EnsureDevice(w, r, s.SecureCookies)
	}

	e, err := s.Sessions.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e.View())
}

// engine opens the session named in the path and checks the caller owns
// it. It writes the error response itself.
func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*session.Engine, bool) {
	e, err := s.Sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return nil, false
	}
	id := auth.FromContext(r.Context())
	if !e.BelongsTo(id.UserID, id.DeviceID) {
		writeError(w, r, s.logger, session.ErrForbidden)
		return nil, false
	}
	return e, true
}

// respondView writes v, or the error with v attached when v is populated.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, v session.View, err error) {
	if err != nil {
		var view *session.View
		if v.SessionID != "" {
			view = &v
		}
		writeErrorView(w, r, s.logger, err, view)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.View())
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Choice     string `json:"choice"`
	Force      bool   `json:"force"`
}

func (s *Server) selectAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	choice, ok := question.ParseOption(req.Choice)
	if !ok {
		writeError(w, r, s.logger, fmt.Errorf("%w: %q", session.ErrInvalidChoice, req.Choice))
		return
	}
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	v, err := e.SelectAnswer(r.Context(), req.QuestionID, choice, req.Force)
	s.respondView(w, r, v, err)
}

type hintRequest struct {
	Level int `json:"level"`
}

func (s *Server) requestHint(w http.ResponseWriter, r *http.Request) {
	var req hintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	v, err := e.RequestHint(r.Context(), req.Level)
	s.respondView(w, r, v, err)
}

func (s *Server) toggleSolution(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	v, err := e.ToggleSolution(r.Context())
	s.respondView(w, r, v, err)
}

type navigateRequest struct {
	Direction string `json:"direction,omitempty"`
	Index     *int   `json:"index,omitempty"`
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	e, ok := s.engine(w, r)
	if !ok {
		return
	}

	var (
		v   session.View
		err error
	)
	switch {
	case req.Index != nil:
		v, err = e.Jump(*req.Index)
	case req.Direction == "next":
		v, err = e.Advance()
	case req.Direction == "prev":
		v, err = e.Retreat()
	default:
		err = fmt.Errorf("%w: direction must be next or prev, or give an index", errBadRequest)
	}
	s.respondView(w, r, v, err)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	v, err := e.Pause(r.Context())
	s.respondView(w, r, v, err)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	v, err := e.Resume(r.Context())
	s.respondView(w, r, v, err)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	if _, err := e.Complete(r.Context()); err != nil {
		s.respondView(w, r, e.View(), err)
		return
	}
	writeJSON(w, http.StatusOK, e.View())
}

func (s *Server) myGoals(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Goals.Get(r.Context(), auth.FromContext(r.Context()).UserID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabiprep/sabiprep/internal/review"
)

func (s *Server) generateReview(w http.ResponseWriter, r *http.Request) {
	rv, err := s.Reviews.Generate(r.Context(), chi.URLParam(r, "id"), adminID(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

type batchRequest struct {
	QuestionIDs []string `json:"question_ids"`
	BatchSize   int      `json:"batch_size"`
}

func (s *Server) batchReviews(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if len(req.QuestionIDs) == 0 {
		writeError(w, r, s.logger, fmt.Errorf("%w: question_ids is required", errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, s.Reviews.GenerateBatch(r.Context(), req.QuestionIDs, req.BatchSize, adminID(r)))
}

func (s *Server) latestReview(w http.ResponseWriter, r *http.Request) {
	rv, err := s.Reviews.LoadLatest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if rv == nil {
		writeError(w, r, s.logger, review.ErrReviewNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (s *Server) reviewHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.Reviews.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if list == nil {
		list = []review.Review{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

type diffResponse struct {
	Review *review.Review     `json:"review"`
	Diff   []review.FieldDiff `json:"diff"`
}

func (s *Server) reviewDiff(w http.ResponseWriter, r *http.Request) {
	rv, diff, err := s.Reviews.DiffFor(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if diff == nil {
		diff = []review.FieldDiff{}
	}
	writeJSON(w, http.StatusOK, diffResponse{Review: rv, Diff: diff})
}

func (s *Server) decideReview(w http.ResponseWriter, r *http.Request) {
	var d review.Decision
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	rv, err := s.Reviews.Decide(r.Context(), chi.URLParam(r, "reviewID"), adminID(r), d)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

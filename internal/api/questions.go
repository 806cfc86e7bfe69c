package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/question"
)

// maxImportBody bounds an uploaded CSV.
const maxImportBody = 10 << 20

func adminID(r *http.Request) string {
	return auth.FromContext(r.Context()).UserID
}

// queryInt reads an optional integer parameter.
func queryInt(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
	}
	return n, nil
}

func questionFilter(q url.Values) (admin.QuestionFilter, error) {
	f := admin.QuestionFilter{
		SubjectID:  q.Get("subject_id"),
		TopicID:    q.Get("topic_id"),
		Status:     question.Status(q.Get("status")),
		Difficulty: q.Get("difficulty"),
		ExamType:   q.Get("exam_type"),
		Search:     q.Get("search"),
	}
	var err error
	if f.ExamYear, err = queryInt(q, "exam_year"); err != nil {
		return f, err
	}
	if f.Page, err = queryInt(q, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(q, "page_size"); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	f, err := questionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	page, err := s.Questions.List(r.Context(), f)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := s.Questions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) createQuestion(w http.ResponseWriter, r *http.Request) {
	var in question.Question
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	q, err := s.Questions.Create(r.Context(), adminID(r), in)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var in question.Question
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	q, err := s.Questions.Update(r.Context(), adminID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// archiveQuestion backs DELETE: the question is archived, not removed.
func (s *Server) archiveQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.Questions.Archive(r.Context(), adminID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkRequest struct {
	Action admin.BulkAction `json:"action"`
	IDs    []string         `json:"ids"`
}

func (s *Server) bulkQuestions(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	res, err := s.Questions.Bulk(r.Context(), adminID(r), req.Action, req.IDs)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// importQuestions accepts a multipart upload in field "file" or a raw CSV
// body.
func (s *Server) importQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)

	var src io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, s.logger, fmt.Errorf("%w: missing file: %v", errBadRequest, err))
			return
		}
		defer f.Close()
		src = f
	}

	rep, err := s.Questions.Import(r.Context(), adminID(r), src)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

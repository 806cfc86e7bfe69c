package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
)

func (s *Server) auditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		AdminID:    q.Get("admin_id"),
		Action:     audit.Action(q.Get("action")),
		EntityType: audit.EntityType(q.Get("entity_type")),
	}
	if f.Action != "" && !f.Action.Valid() {
		writeError(w, r, s.logger, fmt.Errorf("%w: unknown action %q", errBadRequest, f.Action))
		return
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, s.logger, fmt.Errorf("%w: %s must be RFC 3339", errBadRequest, key))
			return
		}
		*dst = t
	}

	page, err := queryInt(q, "page")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	size, err := queryInt(q, "page_size")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	page = max(page, 1)
	if size <= 0 || size > admin.MaxPageSize {
		size = 50
	}
	f.Limit, f.Offset = size, (page-1)*size

	entries, total, err := s.Audit.List(r.Context(), f)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, admin.Page[audit.Entry]{Items: entries, Total: total, Page: page, PageSize: size})
}

type roleRequest struct {
	Role auth.Role `json:"role"`
}

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	u, err := s.Users.ChangeRole(r.Context(), adminID(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type statusRequest struct {
	Status admin.UserStatus `json:"status"`
}

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	u, err := s.Users.ChangeStatus(r.Context(), adminID(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

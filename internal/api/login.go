package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if s.Admin.Email == "" || email != s.Admin.Email {
		writeError(w, r, s.logger, auth.ErrInvalidCredentials)
		return
	}
	if err := auth.CheckPassword(s.Admin.PassHash, req.Password); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	u, err := s.Users.Get(r.Context(), s.Admin.ID)
	switch {
	case errors.Is(err, admin.ErrNotFound):
	case err != nil:
		writeError(w, r, s.logger, err)
		return
	case u.Status == admin.UserSuspended:
		writeError(w, r, s.logger, errAccountSuspended)
		return
	}

	tok, exp, err := s.Auth.Issue(s.Admin.ID, email, auth.RoleAdmin)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.recordSession(r, s.Admin.ID, audit.ActionLogin)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     tok,
		ExpiresAt: exp,
		UserID:    s.Admin.ID,
		Email:     email,
		Role:      auth.RoleAdmin,
	})
}

// logout is stateless: the client drops its token.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id.IsAdmin() {
		s.recordSession(r, id.UserID, audit.ActionLogout)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordSession(r *http.Request, adminID string, action audit.Action) {
	err := s.Audit.Record(r.Context(), audit.Entry{
		AdminID:    adminID,
		Action:     action,
		EntityType: audit.EntityUser,
		EntityID:   adminID,
	})
	if err != nil {
		s.logger.Warn("audit sign-in event failed", "action", action, "error", err)
	}
}

type guestResponse struct {
	DeviceID  string `json:"device_id"`
	Limit     int    `json:"limit"`
	Answered  int    `json:"answered"`
	Remaining int    `json:"remaining"`
}

func (s *Server) guestDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.EnsureDevice(w, r, s.SecureCookies)
	gate := s.Guests.ForDevice(deviceID)
	answered, err := gate.Answered(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, guestResponse{
		DeviceID:  deviceID,
		Limit:     gate.Limit(),
		Answered:  answered,
		Remaining: max(gate.Limit()-answered, 0),
	})
}

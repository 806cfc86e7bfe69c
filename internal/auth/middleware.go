package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceCookie names the cookie that identifies a browser for guest use.
const DeviceCookie = "sabiprep_device"

const deviceCookieTTL = 365 * 24 * time.Hour

// Middleware resolves the caller. A bearer token, when present, must be
// valid; the device cookie is read as is. Requests with neither pass
// through anonymous.
func Middleware(s *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity
			if h := r.Header.Get("Authorization"); h != "" {
				tok, ok := strings.CutPrefix(h, "Bearer ")
				if !ok {
					writeError(w, http.StatusUnauthorized, "malformed authorization header")
					return
				}
				claims, err := s.Parse(strings.TrimSpace(tok))
				if err != nil {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				id.UserID, id.Email, id.Role = claims.Subject, claims.Email, claims.Role
			}
			if c, err := r.Cookie(DeviceCookie); err == nil {
				id.DeviceID = c.Value
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireUser rejects anonymous and guest callers with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Authenticated() {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole lets through only authenticated callers holding role.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if !id.Authenticated() {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if id.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EnsureDevice returns the caller's device id, minting a new one when the
// cookie is missing. The cookie's expiry is refreshed either way.
func EnsureDevice(w http.ResponseWriter, r *http.Request, secure bool) string {
	deviceID := ""
	if c, err := r.Cookie(DeviceCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			deviceID = c.Value
		}
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookie,
		Value:    deviceID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(deviceCookieTTL),
	})
	return deviceID
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

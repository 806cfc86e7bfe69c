// Package api serves the learner and admin JSON APIs over chi.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/goals"
	"github.com/sabiprep/sabiprep/internal/guest"
	"github.com/sabiprep/sabiprep/internal/review"
	"github.com/sabiprep/sabiprep/internal/session"
)

// DefaultRequestTimeout bounds a request that sets no timeout of its own.
const DefaultRequestTimeout = 60 * time.Second

// AdminAccount is the configured back-office login.
type AdminAccount struct {
	ID       string
	Email    string
	PassHash string // bcrypt
}

// Deps are the services behind the API.
type Deps struct {
	Sessions  *session.Manager
	Goals     *goals.Service
	Guests    *guest.Policy
	Questions *admin.Questions
	Users     *admin.Users
	Reviews   *review.Workflow
	Audit     *audit.Recorder
	Auth      *auth.Service
	Admin     AdminAccount

	CORSOrigins    []string
	SecureCookies  bool
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server holds the handlers.
type Server struct {
	Deps
	logger *slog.Logger
}

// New builds the HTTP handler.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{Deps: d, logger: d.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(s.logger), middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(d.Auth), requestMeta)

		r.Post("/auth/login", s.login)
		r.Post("/auth/guest", s.guestDevice)
		r.With(auth.RequireUser).Post("/auth/logout", s.logout)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.startSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Post("/answers", s.selectAnswer)
				r.Post("/hints", s.requestHint)
				r.Post("/solution", s.toggleSolution)
				r.Post("/navigate", s.navigate)
				r.Post("/pause", s.pause)
				r.Post("/resume", s.resume)
				r.Post("/complete", s.complete)
			})
		})
		r.With(auth.RequireUser).Get("/me/goals", s.myGoals)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))

			r.Get("/questions", s.listQuestions)
			r.Post("/questions", s.createQuestion)
			r.Post("/questions/bulk", s.bulkQuestions)
			r.Post("/questions/import", s.importQuestions)
			r.Route("/questions/{id}", func(r chi.Router) {
				r.Get("/", s.getQuestion)
				r.Put("/", s.updateQuestion)
				r.Delete("/", s.archiveQuestion)
				r.Post("/reviews", s.generateReview)
				r.Get("/reviews", s.reviewHistory)
				r.Get("/reviews/latest", s.latestReview)
			})
			r.Post("/reviews/batch", s.batchReviews)
			r.Get("/reviews/{reviewID}/diff", s.reviewDiff)
			r.Post("/reviews/{reviewID}/decision", s.decideReview)

			r.Get("/audit-logs", s.auditLogs)
			r.Patch("/users/{id}/role", s.changeRole)
			r.Patch("/users/{id}/status", s.changeStatus)
		})
	})
	return r
}

// requestLogger logs each request once it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// requestMeta makes the caller's address and agent available to audit
// entries.
func requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestMeta(r.Context(), r.RemoteAddr, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

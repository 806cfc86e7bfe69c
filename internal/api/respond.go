package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/llm"
	"github.com/sabiprep/sabiprep/internal/review"
	"github.com/sabiprep/sabiprep/internal/session"
)

// maxJSONBody bounds decoded request bodies.
const maxJSONBody = 1 << 20

var (
	errBadRequest       = errors.New("bad request")
	errAccountSuspended = errors.New("account suspended")
)

type errorBody struct {
	Error          string        `json:"error"`
	SignupRequired bool          `json:"signup_required,omitempty"`
	View           *session.View `json:"view,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, admin.ErrNotFound),
		errors.Is(err, review.ErrReviewNotFound),
		errors.Is(err, review.ErrQuestionNotFound):
		return http.StatusNotFound

	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrInvalidStart),
		errors.Is(err, admin.ErrInvalidRequest),
		errors.Is(err, review.ErrRejectionReasonRequired):
		return http.StatusBadRequest

	case errors.Is(err, admin.ErrInvalidQuestion),
		errors.Is(err, session.ErrInvalidChoice),
		errors.Is(err, session.ErrNoQuestions):
		return http.StatusUnprocessableEntity

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, session.ErrForbidden),
		errors.Is(err, session.ErrGuestLimitReached),
		errors.Is(err, errAccountSuspended):
		return http.StatusForbidden

	case errors.Is(err, review.ErrNoPendingReview),
		errors.Is(err, review.ErrReviewPending),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrAlreadyCompleted),
		errors.Is(err, session.ErrNotAnswered),
		errors.Is(err, session.ErrQuestionAnswered),
		errors.Is(err, session.ErrNotCurrent),
		errors.Is(err, session.ErrHintLocked),
		errors.Is(err, session.ErrTimeExpired):
		return http.StatusConflict
	}
	if errors.Is(err, review.ErrNoGenerator) {
		return http.StatusServiceUnavailable
	}
	return llmStatus(err)
}

// llmStatus maps provider failures surfaced by review generation.
func llmStatus(err error) int {
	var (
		rateLimit   *llm.ErrRateLimit
		unavailable *llm.ErrProviderUnavailable
		invalid     *llm.ErrInvalidResponse
		truncated   *llm.ErrMaxTokensExceeded
		rejected    *llm.ErrRequestRejected
	)
	switch {
	case errors.As(err, &rateLimit):
		return http.StatusTooManyRequests
	case errors.As(err, &unavailable), errors.As(err, &invalid),
		errors.As(err, &truncated), errors.As(err, &rejected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError responds with err's status. Unmapped errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	writeErrorView(w, r, logger, err, nil)
}

func writeErrorView(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, view *session.View) {
	status := statusOf(err)
	body := errorBody{Error: err.Error(), View: view}
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		body.Error = "internal error"
	}
	if errors.Is(err, session.ErrGuestLimitReached) {
		body.SignupRequired = true
	}
	writeJSON(w, status, body)
}

package session

import (
	"context"

	"github.com/sabiprep/sabiprep/internal/question"
)

// Store is the data-access boundary the engine consumes.
type Store interface {
	// GetSession returns nil, nil when the session does not exist.
	GetSession(ctx context.Context, id string) (*Session, error)

	// GetSessionAnswers returns every recorded answer, in any order.
	GetSessionAnswers(ctx context.Context, sessionID string) ([]Answer, error)

	// GetQuestionsByIDs may return fewer questions than requested; the
	// caller reconciles order and gaps.
	GetQuestionsByIDs(ctx context.Context, ids []string) ([]question.Question, error)

	// CreateSessionAnswer inserts the answer row, or on a repeat attempt
	// updates it without touching first_attempt_correct.
	CreateSessionAnswer(ctx context.Context, a *Answer) error

	// UpdateSession applies a partial progress patch.
	UpdateSession(ctx context.Context, id string, u ProgressUpdate) error

	// CompleteSessionWithGoals marks the session completed and recalculates
	// goals and streaks. Calling it twice for one session is a no-op.
	CompleteSessionWithGoals(ctx context.Context, c Completion) error

	CreateSession(ctx context.Context, s *Session) error
	SelectQuestionIDs(ctx context.Context, sel Selection) ([]string, error)
}

// GuestGate is consulted before accepting an answer from a guest.
type GuestGate interface {
	HasReachedLimit(ctx context.Context) (bool, error)
	Increment(ctx context.Context) (int, error)
	Limit() int
}

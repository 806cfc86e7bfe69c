package session

import (
	"errors"
	"time"

	"github.com/sabiprep/sabiprep/internal/question"
)

// Mode selects how a session is run.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeTest     Mode = "test"
	ModeTimed    Mode = "timed" // test with a time limit
)

// Status is the persisted lifecycle status of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// Phase is the engine's view of where the learner is.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseReady     Phase = "ready"     // question shown, nothing selected
	PhaseAnswering Phase = "answering" // a wrong choice was selected, retry possible
	PhaseReviewing Phase = "reviewing" // current question is answered
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
)

// Session is one practice/test/timed attempt.
type Session struct {
	ID                string     `json:"id"`
	UserID            *string    `json:"user_id,omitempty"`
	DeviceID          string     `json:"-"`
	SubjectID         string     `json:"subject_id"`
	TopicID           *string    `json:"topic_id,omitempty"`
	TopicIDs          []string   `json:"topic_ids,omitempty"`
	Mode              Mode       `json:"mode"`
	TotalQuestions    int        `json:"total_questions"`
	TimeLimitSeconds  *int       `json:"time_limit_seconds,omitempty"`
	Status            Status     `json:"status"`
	QuestionsAnswered int        `json:"questions_answered"`
	CorrectAnswers    int        `json:"correct_answers"`
	TimeSpentSeconds  int        `json:"time_spent_seconds"`
	LastQuestionIndex int        `json:"last_question_index"`
	PausedAt          *time.Time `json:"paused_at,omitempty"`
	QuestionIDs       []string   `json:"question_ids"`
	ScorePercentage   *float64   `json:"score_percentage,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Answer is one recorded response to one question within a session. The
// row is written on the first submission; Answered stays false while the
// question is open for a retry.
type Answer struct {
	SessionID                   string           `json:"session_id"`
	QuestionID                  string           `json:"question_id"`
	TopicID                     string           `json:"topic_id"`
	UserAnswer                  *question.Option `json:"user_answer"`
	IsCorrect                   bool             `json:"is_correct"`
	TimeSpentSeconds            int              `json:"time_spent_seconds"`
	HintUsed                    bool             `json:"hint_used"`
	HintLevel                   *int             `json:"hint_level"`
	SolutionViewed              bool             `json:"solution_viewed"`
	SolutionViewedBeforeAttempt bool             `json:"solution_viewed_before_attempt"`
	AttemptCount                int              `json:"attempt_count"`
	FirstAttemptCorrect         *bool            `json:"first_attempt_correct"`
	Answered                    bool             `json:"answered"`
	CreatedAt                   time.Time        `json:"created_at"`
}

// ProgressUpdate is a partial patch of a session row. Nil fields are left
// untouched.
type ProgressUpdate struct {
	Status            *Status
	LastQuestionIndex *int
	TimeSpentSeconds  *int
	QuestionsAnswered *int
	CorrectAnswers    *int
	PausedAt          *time.Time
	ClearPausedAt     bool
}

// Completion is the terminal write for a session.
type Completion struct {
	SessionID        string
	UserID           *string
	ScorePercentage  float64
	TimeSpentSeconds int
	Correct          int
	Total            int
	CompletedAt      time.Time
}

// Selection describes the questions to freeze into a new session.
type Selection struct {
	SubjectID string
	TopicIDs  []string
	Limit     int
}

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoQuestions       = errors.New("no questions available for this session")
	ErrSessionClosed     = errors.New("session is not accepting answers")
	ErrAlreadyCompleted  = errors.New("session already completed")
	ErrGuestLimitReached = errors.New("guest question limit reached")
	ErrNotAnswered       = errors.New("current question must be answered first")
	ErrQuestionAnswered  = errors.New("question already answered")
	ErrHintLocked        = errors.New("previous hint level must be revealed first")
	ErrNotCurrent        = errors.New("question is not the current question")
	ErrInvalidChoice     = errors.New("invalid answer choice")
	ErrTimeExpired       = errors.New("session time limit expired")
	ErrForbidden         = errors.New("session belongs to another learner")
)

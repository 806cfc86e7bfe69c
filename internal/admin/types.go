// Package admin implements the back-office services: the question bank,
// bulk actions and CSV import, user role and status changes, and audit
// log listing. Every mutation is recorded in the audit log.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/question"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidQuestion = errors.New("invalid question")
	ErrInvalidRequest  = errors.New("invalid request")
)

// QuestionFilter narrows a question bank listing. Zero values mean "any".
type QuestionFilter struct {
	SubjectID  string          `json:"subject_id"`
	TopicID    string          `json:"topic_id"`
	Status     question.Status `json:"status" validate:"omitempty,oneof=draft published archived"`
	Difficulty string          `json:"difficulty"`
	ExamType   string          `json:"exam_type"`
	ExamYear   int             `json:"exam_year" validate:"omitempty,min=1900,max=2100"`
	Search     string          `json:"search"`
	Page       int             `json:"page" validate:"omitempty,min=1"`
	PageSize   int             `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// Offset returns the row offset of the filter's page.
func (f QuestionFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// UserStatus is the account state of a user.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

// User is an account as seen by the back office.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      auth.Role  `json:"role"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// QuestionRepo is the question bank's data-access boundary. Lookups return
// nil, nil for a missing row.
type QuestionRepo interface {
	ListQuestions(ctx context.Context, f QuestionFilter) ([]question.Question, int, error)
	GetQuestion(ctx context.Context, id string) (*question.Question, error)
	CreateQuestion(ctx context.Context, q *question.Question) error
	UpdateQuestion(ctx context.Context, q *question.Question) error

	// SetQuestionStatus changes status for every existing id and returns
	// how many rows changed.
	SetQuestionStatus(ctx context.Context, ids []string, status question.Status, at time.Time) (int, error)
	DeleteQuestions(ctx context.Context, ids []string) (int, error)
}

// UserRepo is the user administration boundary. GetUser returns nil, nil
// for a missing user.
type UserRepo interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateUserRole(ctx context.Context, id string, role auth.Role, at time.Time) error
	UpdateUserStatus(ctx context.Context, id string, status UserStatus, at time.Time) error
}

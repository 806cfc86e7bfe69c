// Package review manages AI-proposed revisions to a question's hints,
// solution and explanation: generation, pending review, and an approve or
// reject decision.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/question"
)

// Status is the lifecycle state of a review row. Every state other than
// pending is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

var (
	ErrReviewNotFound          = errors.New("review not found")
	ErrQuestionNotFound        = errors.New("question not found")
	ErrNoPendingReview         = errors.New("no pending review")
	ErrReviewPending           = errors.New("question already has a pending review")
	ErrRejectionReasonRequired = errors.New("rejection reason is required")
	ErrNoGenerator             = errors.New("no review generator configured")
)

// Proposal is the set of fields a generator proposes. Nil means the field
// is not proposed and stays untouched on approval.
type Proposal struct {
	Hint1       *string `json:"proposed_hint1,omitempty"`
	Hint2       *string `json:"proposed_hint2,omitempty"`
	Hint3       *string `json:"proposed_hint3,omitempty"`
	Solution    *string `json:"proposed_solution,omitempty"`
	Explanation *string `json:"proposed_explanation,omitempty"`
}

// Empty reports whether nothing is proposed.
func (p Proposal) Empty() bool {
	return p.Hint1 == nil && p.Hint2 == nil && p.Hint3 == nil && p.Solution == nil && p.Explanation == nil
}

// Review is one proposal for one question. Rows are kept as history and
// never deleted.
type Review struct {
	ID              string     `json:"id"`
	QuestionID      string     `json:"question_id"`
	Status          Status     `json:"status"`
	Proposal                   // proposed_* fields
	ReviewerID      *string    `json:"reviewer_id,omitempty"`
	ApproverID      *string    `json:"approver_id,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Error           *string    `json:"error,omitempty"`
	Model           string     `json:"model,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// Generator produces a proposal for a question.
type Generator interface {
	Generate(ctx context.Context, q *question.Question) (*Proposal, error)
	ModelID() string
}

// Repo is the data-access boundary of the workflow. Lookups return nil, nil
// when the row does not exist.
type Repo interface {
	GetQuestion(ctx context.Context, id string) (*question.Question, error)
	CreateReview(ctx context.Context, r *Review) error
	GetReview(ctx context.Context, id string) (*Review, error)
	LatestReview(ctx context.Context, questionID string) (*Review, error)
	ListReviews(ctx context.Context, questionID string) ([]Review, error)

	// ApproveReview applies the proposal to the question, marks the review
	// approved and appends entry, all in one transaction. It returns
	// ErrNoPendingReview if the review is no longer pending.
	ApproveReview(ctx context.Context, reviewID, approverID string, at time.Time, entry audit.Entry) (*question.Question, error)

	// RejectReview marks the review rejected with reason and appends entry
	// in one transaction. It returns ErrNoPendingReview if the review is no
	// longer pending.
	RejectReview(ctx context.Context, reviewID, approverID, reason string, at time.Time, entry audit.Entry) error
}

// Apply returns a copy of q with every proposed field of p copied over.
func Apply(q question.Question, p Proposal) question.Question {
	if p.Hint1 != nil {
		q.Hints.Level1 = cloneStr(p.Hint1)
	}
	if p.Hint2 != nil {
		q.Hints.Level2 = cloneStr(p.Hint2)
	}
	if p.Hint3 != nil {
		q.Hints.Level3 = cloneStr(p.Hint3)
	}
	if p.Solution != nil {
		q.Solution = cloneStr(p.Solution)
	}
	if p.Explanation != nil {
		q.Explanation = cloneStr(p.Explanation)
	}
	return q
}

// FieldDiff compares one proposable field.
type FieldDiff struct {
	Field    string  `json:"field"`
	Current  *string `json:"current"`
	Proposed *string `json:"proposed"`
	Changed  bool    `json:"changed"`
}

// Diff lists every proposable field side by side.
func Diff(q *question.Question, p Proposal) []FieldDiff {
	rows := []struct {
		name     string
		current  *string
		proposed *string
	}{
		{"hint1", q.Hints.Level1, p.Hint1},
		{"hint2", q.Hints.Level2, p.Hint2},
		{"hint3", q.Hints.Level3, p.Hint3},
		{"solution", q.Solution, p.Solution},
		{"explanation", q.Explanation, p.Explanation},
	}
	out := make([]FieldDiff, 0, len(rows))
	for _, r := range rows {
		out = append(out, FieldDiff{
			Field:    r.name,
			Current:  r.current,
			Proposed: r.proposed,
			Changed:  r.proposed != nil && (r.current == nil || *r.current != *r.proposed),
		})
	}
	return out
}

// ChangedFields names the fields a proposal would change on q.
func ChangedFields(q *question.Question, p Proposal) []string {
	var names []string
	for _, d := range Diff(q, p) {
		if d.Changed {
			names = append(names, d.Field)
		}
	}
	return names
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

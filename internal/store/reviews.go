package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/question"
	"github.com/sabiprep/sabiprep/internal/review"
)

const reviewsTable = "question_reviews"

var reviewColumns = []string{
	"id", "question_id", "status",
	"proposed_hint1", "proposed_hint2", "proposed_hint3", "proposed_solution", "proposed_explanation",
	"reviewer_id", "approver_id", "rejection_reason", "error", "model", "created_at", "decided_at",
}

func scanReview(r rowScanner) (*review.Review, error) {
	var (
		rv                    review.Review
		status                string
		h1, h2, h3, sol, expl sql.NullString
		reviewer, approver    sql.NullString
		reason, failure       sql.NullString
		created               int64
		decided               sql.NullInt64
	)
	err := r.Scan(&rv.ID, &rv.QuestionID, &status, &h1, &h2, &h3, &sol, &expl,
		&reviewer, &approver, &reason, &failure, &rv.Model, &created, &decided)
	if err != nil {
		return nil, err
	}
	rv.Status = review.Status(status)
	rv.Proposal = review.Proposal{
		Hint1: strPtr(h1), Hint2: strPtr(h2), Hint3: strPtr(h3),
		Solution: strPtr(sol), Explanation: strPtr(expl),
	}
	rv.ReviewerID, rv.ApproverID = strPtr(reviewer), strPtr(approver)
	rv.RejectionReason, rv.Error = strPtr(reason), strPtr(failure)
	rv.CreatedAt, rv.DecidedAt = fromMillis(created), timePtr(decided)
	return &rv, nil
}

// CreateReview inserts r, assigning an id and creation time when unset. A
// question holds at most one pending review; a second one fails with
// review.ErrReviewPending.
func (s *Store) CreateReview(ctx context.Context, r *review.Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	ins := s.sqlb().Insert(reviewsTable).Columns(reviewColumns...).Values(
		r.ID, r.QuestionID, string(r.Status),
		nullable(r.Hint1), nullable(r.Hint2), nullable(r.Hint3), nullable(r.Solution), nullable(r.Explanation),
		nullable(r.ReviewerID), nullable(r.ApproverID), nullable(r.RejectionReason), nullable(r.Error), r.Model,
		toMillis(r.CreatedAt), nullMillis(r.DecidedAt),
	)
	if _, err := exec(ctx, s.db, ins); err != nil {
		if r.Status == review.StatusPending && isUniqueViolation(err) {
			return review.ErrReviewPending
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// GetReview returns nil, nil when the review does not exist.
func (s *Store) GetReview(ctx context.Context, id string) (*review.Review, error) {
	b := s.sqlb()
	sel := b.Select(reviewColumns...).From(b.Table(reviewsTable)).Where(entsql.EQ("id", id))
	r, err := scanReview(queryRow(ctx, s.db, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) reviewsFor(questionID string) *entsql.Selector {
	b := s.sqlb()
	return b.Select(reviewColumns...).From(b.Table(reviewsTable)).
		Where(entsql.EQ("question_id", questionID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
}

// LatestReview returns the newest review of the question, or nil.
func (s *Store) LatestReview(ctx context.Context, questionID string) (*review.Review, error) {
	r, err := scanReview(queryRow(ctx, s.db, s.reviewsFor(questionID).Limit(1)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest review %s: %w", questionID, err)
	}
	return r, nil
}

// ListReviews returns every review of the question, newest first.
func (s *Store) ListReviews(ctx context.Context, questionID string) ([]review.Review, error) {
	rows, err := query(ctx, s.db, s.reviewsFor(questionID))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []review.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// decide moves a pending review to status. It returns
// review.ErrNoPendingReview when the row is missing or already decided.
func (s *Store) decide(ctx context.Context, tx *sql.Tx, reviewID, approverID string, status review.Status, reason *string, at time.Time) error {
	upd := s.sqlb().Update(reviewsTable).
		Set("status", string(status)).
		Set("approver_id", approverID).
		Set("decided_at", toMillis(at))
	if reason != nil {
		upd.Set("rejection_reason", *reason)
	}
	upd.Where(entsql.And(
		entsql.EQ("id", reviewID),
		entsql.EQ("status", string(review.StatusPending)),
	))
	res, err := exec(ctx, tx, upd)
	if err != nil {
		return fmt.Errorf("decide review %s: %w", reviewID, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return review.ErrNoPendingReview
	}
	return nil
}

// ApproveReview copies the proposal onto the question, marks the review
// approved and appends entry in one transaction.
func (s *Store) ApproveReview(ctx context.Context, reviewID, approverID string, at time.Time, entry audit.Entry) (*question.Question, error) {
	var updated *question.Question
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.decide(ctx, tx, reviewID, approverID, review.StatusApproved, nil, at); err != nil {
			return err
		}

		b := s.sqlb()
		sel := b.Select(reviewColumns...).From(b.Table(reviewsTable)).Where(entsql.EQ("id", reviewID))
		r, err := scanReview(queryRow(ctx, tx, sel))
		if err != nil {
			return fmt.Errorf("load review %s: %w", reviewID, err)
		}
		q, err := s.getQuestion(ctx, tx, r.QuestionID)
		if err != nil {
			return err
		}
		if q == nil {
			return review.ErrQuestionNotFound
		}

		next := review.Apply(*q, r.Proposal)
		next.UpdatedAt = at
		if err := s.updateQuestion(ctx, tx, &next); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, &entry); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RejectReview records the reason and appends entry in one transaction.
// The question is not touched.
func (s *Store) RejectReview(ctx context.Context, reviewID, approverID, reason string, at time.Time, entry audit.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.decide(ctx, tx, reviewID, approverID, review.StatusRejected, &reason, at); err != nil {
			return err
		}
		return s.appendAudit(ctx, tx, &entry)
	})
}

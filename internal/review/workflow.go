package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabiprep/sabiprep/internal/audit"
)

// DefaultBatchSize bounds concurrent generations in a batch.
const DefaultBatchSize = 5

// Workflow drives reviews from generation to decision.
type Workflow struct {
	repo      Repo
	gen       Generator
	audit     *audit.Recorder
	logger    *slog.Logger
	now       func() time.Time
	batchSize int
}

// NewWorkflow creates a Workflow. gen may be nil when no LLM provider is
// configured; generation then fails with an error while decisions still work.
func NewWorkflow(repo Repo, gen Generator, rec *audit.Recorder, logger *slog.Logger, batchSize int) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Workflow{
		repo:      repo,
		gen:       gen,
		audit:     rec,
		logger:    logger,
		now:       time.Now,
		batchSize: batchSize,
	}
}

// Generate creates a pending review for a question. If the generator fails,
// a failed row is kept as history and the error is returned. The pending
// check up front only saves a generator call; the repository's one-pending
// rule decides between concurrent calls.
func (w *Workflow) Generate(ctx context.Context, questionID, reviewerID string) (*Review, error) {
	if w.gen == nil {
		return nil, ErrNoGenerator
	}
	q, err := w.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	latest, err := w.repo.LatestReview(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("load latest review: %w", err)
	}
	if latest != nil && latest.Status == StatusPending {
		return nil, ErrReviewPending
	}

	r := &Review{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		Model:      w.gen.ModelID(),
		CreatedAt:  w.now().UTC(),
	}
	if reviewerID != "" {
		r.ReviewerID = &reviewerID
	}

	prop, genErr := w.gen.Generate(ctx, q)
	if genErr != nil {
		msg := genErr.Error()
		r.Status = StatusFailed
		r.Error = &msg
		if err := w.repo.CreateReview(ctx, r); err != nil {
			w.logger.Warn("record failed review", "question_id", questionID, "error", err)
		}
		return nil, fmt.Errorf("generate review: %w", genErr)
	}

	r.Status = StatusPending
	r.Proposal = *prop
	if err := w.repo.CreateReview(ctx, r); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	w.logger.Info("review generated", "review_id", r.ID, "question_id", questionID, "model", r.Model)
	return r, nil
}

// BatchFailure is one item that failed in a batch.
type BatchFailure struct {
	QuestionID string `json:"question_id"`
	Error      string `json:"error"`
}

// BatchResult summarises a batch generation.
type BatchResult struct {
	Requested int            `json:"requested"`
	Succeeded int            `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
	Reviews   []Review       `json:"reviews"`
}

// GenerateBatch generates a review for every id, at most batchSize at a
// time. A failed item never aborts the rest of the batch. A non-positive
// batchSize uses the workflow default.
func (w *Workflow) GenerateBatch(ctx context.Context, questionIDs []string, batchSize int, reviewerID string) BatchResult {
	if batchSize <= 0 {
		batchSize = w.batchSize
	}
	questionIDs = dedupe(questionIDs)
	res := BatchResult{Requested: len(questionIDs), Failed: []BatchFailure{}, Reviews: []Review{}}

	type outcome struct {
		idx    int
		review *Review
		err    error
	}
	outcomes := make([]outcome, len(questionIDs))

	for start := 0; start < len(questionIDs); start += batchSize {
		if ctx.Err() != nil {
			for i := start; i < len(questionIDs); i++ {
				outcomes[i] = outcome{idx: i, err: ctx.Err()}
			}
			break
		}
		end := start + batchSize
		if end > len(questionIDs) {
			end = len(questionIDs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r, err := w.Generate(ctx, questionIDs[i], reviewerID)
				outcomes[i] = outcome{idx: i, review: r, err: err}
			}(i)
		}
		wg.Wait()
	}

	for i, o := range outcomes {
		if o.err != nil {
			res.Failed = append(res.Failed, BatchFailure{QuestionID: questionIDs[i], Error: o.err.Error()})
			continue
		}
		res.Succeeded++
		res.Reviews = append(res.Reviews, *o.review)
	}
	w.logger.Info("review batch finished",
		"requested", res.Requested, "succeeded", res.Succeeded, "failed", len(res.Failed))
	return res
}

// Decision is an admin's verdict on a pending review.
type Decision struct {
	Approved        bool   `json:"approved"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// Decide applies a Decision.
func (w *Workflow) Decide(ctx context.Context, reviewID, adminID string, d Decision) (*Review, error) {
	if d.Approved {
		if _, err := w.Approve(ctx, reviewID, adminID); err != nil {
			return nil, err
		}
	} else if err := w.Reject(ctx, reviewID, adminID, d.RejectionReason); err != nil {
		return nil, err
	}
	return w.repo.GetReview(ctx, reviewID)
}

// Approve copies the proposal onto the live question. Only a pending
// review can be approved; on failure nothing changes.
func (w *Workflow) Approve(ctx context.Context, reviewID, approverID string) (*Review, error) {
	r, err := w.pending(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	q, err := w.repo.GetQuestion(ctx, r.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}

	entry := w.audit.Stamp(ctx, audit.Entry{
		AdminID:    approverID,
		Action:     audit.ActionUpdate,
		EntityType: audit.EntityQuestion,
		EntityID:   r.QuestionID,
		Details: map[string]any{
			"review_id": r.ID,
			"decision":  string(StatusApproved),
			"fields":    ChangedFields(q, r.Proposal),
		},
	})
	if _, err := w.repo.ApproveReview(ctx, r.ID, approverID, w.now().UTC(), entry); err != nil {
		return nil, fmt.Errorf("approve review: %w", err)
	}
	w.logger.Info("review approved", "review_id", r.ID, "question_id", r.QuestionID, "admin_id", approverID)
	return w.repo.GetReview(ctx, r.ID)
}

// Reject records the reason and leaves the question untouched. The reason
// is checked before any store call.
func (w *Workflow) Reject(ctx context.Context, reviewID, approverID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrRejectionReasonRequired
	}
	r, err := w.pending(ctx, reviewID)
	if err != nil {
		return err
	}
	entry := w.audit.Stamp(ctx, audit.Entry{
		AdminID:    approverID,
		Action:     audit.ActionUpdate,
		EntityType: audit.EntityQuestion,
		EntityID:   r.QuestionID,
		Details: map[string]any{
			"review_id":        r.ID,
			"decision":         string(StatusRejected),
			"rejection_reason": reason,
		},
	})
	if err := w.repo.RejectReview(ctx, r.ID, approverID, reason, w.now().UTC(), entry); err != nil {
		return fmt.Errorf("reject review: %w", err)
	}
	w.logger.Info("review rejected", "review_id", r.ID, "question_id", r.QuestionID, "admin_id", approverID)
	return nil
}

func (w *Workflow) pending(ctx context.Context, reviewID string) (*Review, error) {
	r, err := w.repo.GetReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("load review: %w", err)
	}
	if r == nil {
		return nil, ErrReviewNotFound
	}
	if r.Status != StatusPending {
		return nil, ErrNoPendingReview
	}
	return r, nil
}

// LoadLatest returns the newest review for a question, or nil if there is
// none.
func (w *Workflow) LoadLatest(ctx context.Context, questionID string) (*Review, error) {
	return w.repo.LatestReview(ctx, questionID)
}

// History lists every review for a question, newest first.
func (w *Workflow) History(ctx context.Context, questionID string) ([]Review, error) {
	return w.repo.ListReviews(ctx, questionID)
}

// DiffFor compares a review's proposal with its question's current fields.
func (w *Workflow) DiffFor(ctx context.Context, reviewID string) (*Review, []FieldDiff, error) {
	r, err := w.repo.GetReview(ctx, reviewID)
	if err != nil {
		return nil, nil, fmt.Errorf("load review: %w", err)
	}
	if r == nil {
		return nil, nil, ErrReviewNotFound
	}
	q, err := w.repo.GetQuestion(ctx, r.QuestionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load question: %w", err)
	}
	if q == nil {
		return nil, nil, ErrQuestionNotFound
	}
	return r, Diff(q, r.Proposal), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

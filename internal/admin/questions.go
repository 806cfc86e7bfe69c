package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/question"
)

// MaxBulkIDs bounds one bulk action.
const MaxBulkIDs = 500

// BulkAction is a mass change over a set of questions.
type BulkAction string

const (
	BulkPublish BulkAction = "publish"
	BulkArchive BulkAction = "archive"
	BulkDelete  BulkAction = "delete"
)

// BulkResult reports how many of the requested questions changed.
type BulkResult struct {
	Action    BulkAction `json:"action"`
	Requested int        `json:"requested"`
	Affected  int        `json:"affected"`
}

// Questions is the question bank service.
type Questions struct {
	repo     QuestionRepo
	audit    *audit.Recorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewQuestions returns the question bank service.
func NewQuestions(repo QuestionRepo, rec *audit.Recorder, logger *slog.Logger) *Questions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Questions{
		repo:     repo,
		audit:    rec,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// List returns one page of the bank. Page defaults to 1 and PageSize to
// DefaultPageSize.
func (s *Questions) List(ctx context.Context, f QuestionFilter) (Page[question.Question], error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = DefaultPageSize
	}
	if err := s.validate.Struct(f); err != nil {
		return Page[question.Question]{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	items, total, err := s.repo.ListQuestions(ctx, f)
	if err != nil {
		return Page[question.Question]{}, fmt.Errorf("list questions: %w", err)
	}
	if items == nil {
		items = []question.Question{}
	}
	return Page[question.Question]{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// Get returns the question or ErrNotFound.
func (s *Questions) Get(ctx context.Context, id string) (*question.Question, error) {
	q, err := s.repo.GetQuestion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if q == nil {
		return nil, ErrNotFound
	}
	return q, nil
}

// Create validates and stores a new question. New questions start as
// drafts unless a status is given.
func (s *Questions) Create(ctx context.Context, adminID string, q question.Question) (*question.Question, error) {
	q.ID = ""
	if q.Status == "" {
		q.Status = question.StatusDraft
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuestion, err)
	}
	if err := s.repo.CreateQuestion(ctx, &q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	if err := s.record(ctx, adminID, audit.ActionCreate, q.ID, map[string]any{
		"subject_id": q.SubjectID,
		"topic_id":   q.TopicID,
		"status":     string(q.Status),
	}); err != nil {
		return nil, err
	}
	return &q, nil
}

// Update replaces the editable fields of an existing question.
func (s *Questions) Update(ctx context.Context, adminID, id string, q question.Question) (*question.Question, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	q.ID, q.CreatedAt = cur.ID, cur.CreatedAt
	if q.Status == "" {
		q.Status = cur.Status
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuestion, err)
	}
	if err := s.repo.UpdateQuestion(ctx, &q); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	details := map[string]any{}
	if cur.Status != q.Status {
		details["previous_status"] = string(cur.Status)
		details["new_status"] = string(q.Status)
	}
	if err := s.record(ctx, adminID, audit.ActionUpdate, q.ID, details); err != nil {
		return nil, err
	}
	return &q, nil
}

// Archive soft-deletes a question. The row stays and leaves every
// learner-facing selection.
func (s *Questions) Archive(ctx context.Context, adminID, id string) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.repo.SetQuestionStatus(ctx, []string{id}, question.StatusArchived, s.now().UTC()); err != nil {
		return fmt.Errorf("archive question: %w", err)
	}
	return s.record(ctx, adminID, audit.ActionDelete, id, map[string]any{
		"previous_status": string(cur.Status),
		"soft_delete":     true,
	})
}

// Bulk applies action to every id. Missing ids are skipped and show up as
// the gap between Requested and Affected.
func (s *Questions) Bulk(ctx context.Context, adminID string, action BulkAction, ids []string) (BulkResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return BulkResult{}, fmt.Errorf("%w: no question ids", ErrInvalidRequest)
	}
	if len(ids) > MaxBulkIDs {
		return BulkResult{}, fmt.Errorf("%w: at most %d ids per bulk action", ErrInvalidRequest, MaxBulkIDs)
	}

	var (
		n      int
		err    error
		logged audit.Action
		at     = s.now().UTC()
	)
	switch action {
	case BulkPublish:
		n, err = s.repo.SetQuestionStatus(ctx, ids, question.StatusPublished, at)
		logged = audit.ActionBulkPublish
	case BulkArchive:
		n, err = s.repo.SetQuestionStatus(ctx, ids, question.StatusArchived, at)
		logged = audit.ActionBulkArchive
	case BulkDelete:
		n, err = s.repo.DeleteQuestions(ctx, ids)
		logged = audit.ActionBulkDelete
	default:
		return BulkResult{}, fmt.Errorf("%w: unknown bulk action %q", ErrInvalidRequest, action)
	}
	if err != nil {
		return BulkResult{}, fmt.Errorf("bulk %s: %w", action, err)
	}

	res := BulkResult{Action: action, Requested: len(ids), Affected: n}
	if err := s.record(ctx, adminID, logged, "", map[string]any{
		"ids":      ids,
		"affected": n,
	}); err != nil {
		return BulkResult{}, err
	}
	s.logger.Info("bulk question action", "action", action, "requested", res.Requested, "affected", n, "admin_id", adminID)
	return res, nil
}

func (s *Questions) record(ctx context.Context, adminID string, action audit.Action, entityID string, details map[string]any) error {
	if len(details) == 0 {
		details = nil
	}
	err := s.audit.Record(ctx, audit.Entry{
		AdminID:    adminID,
		Action:     action,
		EntityType: audit.EntityQuestion,
		EntityID:   entityID,
		Details:    details,
	})
	if err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// IsValidation reports whether err is a caller mistake rather than a
// failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidQuestion) || errors.Is(err, ErrInvalidRequest)
}

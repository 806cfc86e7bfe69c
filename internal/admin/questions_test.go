package admin

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/question"
)

func newQuestions() (*Questions, *memQuestions, *memAudit) {
	repo, log := newMemQuestions(), &memAudit{}
	return NewQuestions(repo, audit.NewRecorder(log, nil), nil), repo, log
}

func TestList_DefaultsAndValidation(t *testing.T) {
	svc, repo, _ := newQuestions()
	ctx := context.Background()

	page, err := svc.List(ctx, QuestionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 0, repo.lastF.Offset())

	_, err = svc.List(ctx, QuestionFilter{PageSize: MaxPageSize + 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.List(ctx, QuestionFilter{Status: "deleted"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.List(ctx, QuestionFilter{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 20, repo.lastF.Offset())
}

func TestCreate(t *testing.T) {
	svc, _, log := newQuestions()
	ctx := context.Background()

	q, err := svc.Create(ctx, "admin-1", validQuestion())
	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, question.StatusDraft, q.Status)
	assert.Equal(t, []audit.Action{audit.ActionCreate}, log.actions())
	assert.Equal(t, q.ID, log.entries[0].EntityID)
	assert.Equal(t, audit.EntityQuestion, log.entries[0].EntityType)
}

func TestCreate_RejectsEmptyCorrectOption(t *testing.T) {
	svc, repo, log := newQuestions()
	q := validQuestion()
	q.CorrectAnswer = question.OptionE

	_, err := svc.Create(context.Background(), "admin-1", q)
	assert.ErrorIs(t, err, ErrInvalidQuestion)
	assert.ErrorIs(t, err, question.ErrInvalid)
	assert.Empty(t, repo.questions)
	assert.Empty(t, log.entries)
}

func TestUpdate(t *testing.T) {
	svc, _, log := newQuestions()
	ctx := context.Background()
	created, err := svc.Create(ctx, "admin-1", validQuestion())
	require.NoError(t, err)

	edit := validQuestion()
	edit.Text = "Which unit measures force?"
	edit.Status = question.StatusPublished
	updated, err := svc.Update(ctx, "admin-1", created.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Which unit measures force?", updated.Text)

	require.Len(t, log.entries, 2)
	e := log.entries[1]
	assert.Equal(t, audit.ActionUpdate, e.Action)
	assert.Equal(t, "draft", e.Details["previous_status"])
	assert.Equal(t, "published", e.Details["new_status"])

	_, err = svc.Update(ctx, "admin-1", "missing", edit)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_IsSoftDelete(t *testing.T) {
	svc, repo, log := newQuestions()
	ctx := context.Background()
	q, err := svc.Create(ctx, "admin-1", validQuestion())
	require.NoError(t, err)

	require.NoError(t, svc.Archive(ctx, "admin-1", q.ID))
	assert.Equal(t, question.StatusArchived, repo.questions[q.ID].Status)
	assert.Equal(t, []audit.Action{audit.ActionCreate, audit.ActionDelete}, log.actions())

	assert.ErrorIs(t, svc.Archive(ctx, "admin-1", "missing"), ErrNotFound)
}

func TestBulk(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		action BulkAction
		want   audit.Action
		check  func(t *testing.T, repo *memQuestions, ids []string)
	}{
		{BulkPublish, audit.ActionBulkPublish, func(t *testing.T, repo *memQuestions, ids []string) {
			for _, id := range ids {
				assert.Equal(t, question.StatusPublished, repo.questions[id].Status)
			}
		}},
		{BulkArchive, audit.ActionBulkArchive, func(t *testing.T, repo *memQuestions, ids []string) {
			for _, id := range ids {
				assert.Equal(t, question.StatusArchived, repo.questions[id].Status)
			}
		}},
		{BulkDelete, audit.ActionBulkDelete, func(t *testing.T, repo *memQuestions, ids []string) {
			assert.Empty(t, repo.questions)
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			svc, repo, log := newQuestions()
			var ids []string
			for range 2 {
				q, err := svc.Create(ctx, "admin-1", validQuestion())
				require.NoError(t, err)
				ids = append(ids, q.ID)
			}

			res, err := svc.Bulk(ctx, "admin-1", tt.action, append(ids, ids[0], "missing"))
			require.NoError(t, err)
			assert.Equal(t, 3, res.Requested)
			assert.Equal(t, 2, res.Affected)
			tt.check(t, repo, ids)

			last := log.entries[len(log.entries)-1]
			assert.Equal(t, tt.want, last.Action)
			assert.Equal(t, 2, last.Details["affected"])
		})
	}
}

func TestBulk_Rejects(t *testing.T) {
	svc, _, log := newQuestions()
	ctx := context.Background()

	_, err := svc.Bulk(ctx, "admin-1", BulkPublish, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Bulk(ctx, "admin-1", "explode", []string{"q1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	tooMany := make([]string, MaxBulkIDs+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("q-%d", i)
	}
	_, err = svc.Bulk(ctx, "admin-1", BulkPublish, tooMany)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, log.entries)
}

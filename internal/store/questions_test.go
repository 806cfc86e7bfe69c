package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/question"
	"github.com/sabiprep/sabiprep/internal/session"
)

func TestQuestionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	year := 2021
	q := seedQuestion(t, s, func(q *question.Question) {
		q.Passage = strp("Read the passage.")
		q.PassageID = strp("p1")
		q.OptionE = strp("Argon")
		q.Hints = question.Hints{Level1: strp("h1"), Legacy: strp("old")}
		q.ExamYear = &year
		q.Status = ""
	})
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, question.StatusDraft, q.Status)

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, q.Text, got.Text)
	assert.Equal(t, "Read the passage.", *got.Passage)
	assert.Equal(t, "Argon", *got.OptionE)
	assert.Equal(t, "h1", *got.Hints.Level1)
	assert.Nil(t, got.Hints.Level2)
	assert.Equal(t, "old", *got.Hints.Legacy)
	assert.Equal(t, 2021, *got.ExamYear)
	assert.Equal(t, question.OptionB, got.CorrectAnswer)
	assert.True(t, got.CreatedAt.Equal(q.CreatedAt.Truncate(time.Millisecond)))

	missing, err := s.GetQuestion(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateQuestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := seedQuestion(t, s, func(q *question.Question) { q.Explanation = strp("because") })

	q.Text = "Edited"
	q.Explanation = nil
	require.NoError(t, s.UpdateQuestion(ctx, q))

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Text)
	assert.Nil(t, got.Explanation)

	err = s.UpdateQuestion(ctx, &question.Question{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetQuestionsByIDs_Batches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var ids []string
	for range getQuestionsBatch + 5 {
		ids = append(ids, seedQuestion(t, s, nil).ID)
	}
	got, err := s.GetQuestionsByIDs(ctx, append(ids, "missing"))
	require.NoError(t, err)
	assert.Len(t, got, len(ids))

	empty, err := s.GetQuestionsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSelectQuestionIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for range 3 {
		seedQuestion(t, s, nil)
	}
	seedQuestion(t, s, func(q *question.Question) { q.TopicID = "salts" })
	seedQuestion(t, s, func(q *question.Question) { q.Status = question.StatusDraft })
	seedQuestion(t, s, func(q *question.Question) { q.SubjectID = "bio" })

	ids, err := s.SelectQuestionIDs(ctx, session.Selection{SubjectID: "chem"})
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	ids, err = s.SelectQuestionIDs(ctx, session.Selection{SubjectID: "chem", TopicIDs: []string{"acids"}, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	ids, err = s.SelectQuestionIDs(ctx, session.Selection{SubjectID: "chem", TopicIDs: []string{"salts", "acids"}})
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func TestListQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		seedQuestion(t, s, func(q *question.Question) {
			q.CreatedAt = base.Add(time.Duration(i) * time.Hour)
			if i%2 == 0 {
				q.Text = "Acid rain question"
			}
		})
	}
	seedQuestion(t, s, func(q *question.Question) { q.Status = question.StatusArchived })

	items, total, err := s.ListQuestions(ctx, admin.QuestionFilter{Status: question.StatusPublished, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))

	items, total, err = s.ListQuestions(ctx, admin.QuestionFilter{Status: question.StatusPublished, Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, items, 1)

	items, total, err = s.ListQuestions(ctx, admin.QuestionFilter{Search: "acid RAIN"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 3)
}

func TestBulkStatusAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedQuestion(t, s, func(q *question.Question) { q.Status = question.StatusDraft })
	b := seedQuestion(t, s, func(q *question.Question) { q.Status = question.StatusDraft })

	n, err := s.SetQuestionStatus(ctx, []string{a.ID, b.ID, "ghost"}, question.StatusPublished, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, err := s.GetQuestion(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, question.StatusPublished, got.Status)

	n, err = s.DeleteQuestions(ctx, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = s.GetQuestion(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = s.DeleteQuestions(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

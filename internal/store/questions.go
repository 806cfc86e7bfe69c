package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/question"
	"github.com/sabiprep/sabiprep/internal/session"
)

const questionsTable = "questions"

var questionColumns = []string{
	"id", "subject_id", "topic_id", "question_text", "passage", "passage_id", "question_image_url",
	"option_a", "option_b", "option_c", "option_d", "option_e", "correct_answer",
	"explanation", "hint1", "hint2", "hint3", "hint", "solution",
	"difficulty", "exam_type", "exam_year", "status", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (*question.Question, error) {
	var (
		q                                       question.Question
		passage, passageID, image, optE         sql.NullString
		explanation, h1, h2, h3, legacy, solved sql.NullString
		year                                    sql.NullInt64
		correct, status                         string
		created, updated                        int64
	)
	err := r.Scan(&q.ID, &q.SubjectID, &q.TopicID, &q.Text, &passage, &passageID, &image,
		&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &optE, &correct,
		&explanation, &h1, &h2, &h3, &legacy, &solved,
		&q.Difficulty, &q.ExamType, &year, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	q.Passage, q.PassageID, q.ImageURL, q.OptionE = strPtr(passage), strPtr(passageID), strPtr(image), strPtr(optE)
	q.CorrectAnswer = question.Option(correct)
	q.Explanation, q.Solution = strPtr(explanation), strPtr(solved)
	q.Hints = question.Hints{Level1: strPtr(h1), Level2: strPtr(h2), Level3: strPtr(h3), Legacy: strPtr(legacy)}
	q.ExamYear = intPtr(year)
	q.Status = question.Status(status)
	q.CreatedAt, q.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &q, nil
}

func questionValues(q *question.Question) []any {
	return []any{
		q.ID, q.SubjectID, q.TopicID, q.Text, nullable(q.Passage), nullable(q.PassageID), nullable(q.ImageURL),
		q.OptionA, q.OptionB, q.OptionC, q.OptionD, nullable(q.OptionE), string(q.CorrectAnswer),
		nullable(q.Explanation), nullable(q.Hints.Level1), nullable(q.Hints.Level2), nullable(q.Hints.Level3),
		nullable(q.Hints.Legacy), nullable(q.Solution),
		q.Difficulty, q.ExamType, nullable(q.ExamYear), string(q.Status), toMillis(q.CreatedAt), toMillis(q.UpdatedAt),
	}
}

func (s *Store) getQuestion(ctx context.Context, c conn, id string) (*question.Question, error) {
	b := s.sqlb()
	sel := b.Select(questionColumns...).From(b.Table(questionsTable)).Where(entsql.EQ("id", id))
	q, err := scanQuestion(queryRow(ctx, c, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", id, err)
	}
	return q, nil
}

// GetQuestion returns nil, nil when the question does not exist.
func (s *Store) GetQuestion(ctx context.Context, id string) (*question.Question, error) {
	return s.getQuestion(ctx, s.db, id)
}

// GetQuestionsByIDs returns the questions that exist among ids, in no
// particular order, querying in batches.
func (s *Store) GetQuestionsByIDs(ctx context.Context, ids []string) ([]question.Question, error) {
	out := make([]question.Question, 0, len(ids))
	b := s.sqlb()
	for start := 0; start < len(ids); start += getQuestionsBatch {
		end := min(start+getQuestionsBatch, len(ids))
		sel := b.Select(questionColumns...).From(b.Table(questionsTable)).
			Where(entsql.In("id", anys(ids[start:end])...))
		rows, err := query(ctx, s.db, sel)
		if err != nil {
			return nil, fmt.Errorf("get questions: %w", err)
		}
		for rows.Next() {
			q, err := scanQuestion(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan question: %w", err)
			}
			out = append(out, *q)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("get questions: %w", err)
		}
	}
	return out, nil
}

// SelectQuestionIDs picks up to sel.Limit random published questions from
// the subject and, when given, the topics.
func (s *Store) SelectQuestionIDs(ctx context.Context, sel session.Selection) ([]string, error) {
	b := s.sqlb()
	preds := []*entsql.Predicate{
		entsql.EQ("subject_id", sel.SubjectID),
		entsql.EQ("status", string(question.StatusPublished)),
	}
	if len(sel.TopicIDs) > 0 {
		preds = append(preds, entsql.In("topic_id", anys(sel.TopicIDs)...))
	}
	q := b.Select("id").From(b.Table(questionsTable)).
		Where(entsql.And(preds...)).
		OrderExpr(entsql.Expr("RANDOM()"))
	if sel.Limit > 0 {
		q.Limit(sel.Limit)
	}

	rows, err := query(ctx, s.db, q)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func questionPredicate(f admin.QuestionFilter) *entsql.Predicate {
	var preds []*entsql.Predicate
	if f.SubjectID != "" {
		preds = append(preds, entsql.EQ("subject_id", f.SubjectID))
	}
	if f.TopicID != "" {
		preds = append(preds, entsql.EQ("topic_id", f.TopicID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.Difficulty != "" {
		preds = append(preds, entsql.EQ("difficulty", f.Difficulty))
	}
	if f.ExamType != "" {
		preds = append(preds, entsql.EQ("exam_type", f.ExamType))
	}
	if f.ExamYear != 0 {
		preds = append(preds, entsql.EQ("exam_year", f.ExamYear))
	}
	if f.Search != "" {
		preds = append(preds, entsql.ContainsFold("question_text", f.Search))
	}
	if len(preds) == 0 {
		return nil
	}
	return entsql.And(preds...)
}

// ListQuestions returns one page of questions, newest first, and the total
// number matching the filter.
func (s *Store) ListQuestions(ctx context.Context, f admin.QuestionFilter) ([]question.Question, int, error) {
	b := s.sqlb()
	pred := questionPredicate(f)

	count := b.Select(entsql.Count("*")).From(b.Table(questionsTable))
	if pred != nil {
		count.Where(pred)
	}
	var total int
	if err := queryRow(ctx, s.db, count).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	sel := b.Select(questionColumns...).From(b.Table(questionsTable)).
		OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if pred != nil {
		sel.Where(pred)
	}
	if f.PageSize > 0 {
		sel.Limit(f.PageSize).Offset(max(f.Offset(), 0))
	}

	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []question.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

// CreateQuestion inserts q, assigning an id and timestamps when unset.
func (s *Store) CreateQuestion(ctx context.Context, q *question.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = question.StatusDraft
	}

	ins := s.sqlb().Insert(questionsTable).Columns(questionColumns...).Values(questionValues(q)...)
	if _, err := exec(ctx, s.db, ins); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// UpdateQuestion overwrites every column of q except id and created_at.
func (s *Store) UpdateQuestion(ctx context.Context, q *question.Question) error {
	q.UpdatedAt = s.now().UTC()
	return s.updateQuestion(ctx, s.db, q)
}

func (s *Store) updateQuestion(ctx context.Context, c conn, q *question.Question) error {
	upd := s.sqlb().Update(questionsTable)
	values := questionValues(q)
	for i, col := range questionColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		if values[i] == nil {
			upd.SetNull(col)
		} else {
			upd.Set(col, values[i])
		}
	}
	upd.Where(entsql.EQ("id", q.ID))

	res, err := exec(ctx, c, upd)
	if err != nil {
		return fmt.Errorf("update question %s: %w", q.ID, err)
	}
	n, err := affected(res)
	if err != nil {
		return fmt.Errorf("update question %s: %w", q.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update question %s: %w", q.ID, ErrNotFound)
	}
	return nil
}

func (s *Store) SetQuestionStatus(ctx context.Context, ids []string, status question.Status, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	upd := s.sqlb().Update(questionsTable).
		Set("status", string(status)).
		Set("updated_at", toMillis(at)).
		Where(entsql.In("id", anys(ids)...))
	res, err := exec(ctx, s.db, upd)
	if err != nil {
		return 0, fmt.Errorf("set question status: %w", err)
	}
	return affected(res)
}

// DeleteQuestions removes the rows outright. Answers and reviews that
// reference them are kept.
func (s *Store) DeleteQuestions(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	del := s.sqlb().Delete(questionsTable).Where(entsql.In("id", anys(ids)...))
	res, err := exec(ctx, s.db, del)
	if err != nil {
		return 0, fmt.Errorf("delete questions: %w", err)
	}
	return affected(res)
}

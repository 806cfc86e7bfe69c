package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/sabiprep/sabiprep/internal/goals"
	"github.com/sabiprep/sabiprep/internal/question"
	"github.com/sabiprep/sabiprep/internal/session"
)

const (
	sessionsTable = "learning_sessions"
	answersTable  = "session_answers"
)

var sessionColumns = []string{
	"id", "user_id", "device_id", "subject_id", "topic_id", "topic_ids", "mode",
	"total_questions", "time_limit_seconds", "status", "questions_answered", "correct_answers",
	"time_spent_seconds", "last_question_index", "paused_at", "question_ids", "score_percentage",
	"started_at", "completed_at",
}

var answerColumns = []string{
	"session_id", "question_id", "topic_id", "user_answer", "is_correct", "time_spent_seconds",
	"hint_used", "hint_level", "solution_viewed", "solution_viewed_before_attempt",
	"attempt_count", "first_attempt_correct", "answered", "created_at", "updated_at",
}

func scanSession(r rowScanner) (*session.Session, error) {
	var (
		s                     session.Session
		userID, topicID       sql.NullString
		topicIDs, questionIDs string
		mode, status          string
		limit                 sql.NullInt64
		pausedAt, completedAt sql.NullInt64
		score                 sql.NullFloat64
		startedAt             int64
	)
	err := r.Scan(&s.ID, &userID, &s.DeviceID, &s.SubjectID, &topicID, &topicIDs, &mode,
		&s.TotalQuestions, &limit, &status, &s.QuestionsAnswered, &s.CorrectAnswers,
		&s.TimeSpentSeconds, &s.LastQuestionIndex, &pausedAt, &questionIDs, &score,
		&startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topicIDs), &s.TopicIDs); err != nil {
		return nil, fmt.Errorf("decode topic_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(questionIDs), &s.QuestionIDs); err != nil {
		return nil, fmt.Errorf("decode question_ids: %w", err)
	}
	s.UserID, s.TopicID = strPtr(userID), strPtr(topicID)
	s.Mode, s.Status = session.Mode(mode), session.Status(status)
	s.TimeLimitSeconds = intPtr(limit)
	s.PausedAt, s.CompletedAt = timePtr(pausedAt), timePtr(completedAt)
	if score.Valid {
		s.ScorePercentage = &score.Float64
	}
	s.StartedAt = fromMillis(startedAt)
	return &s, nil
}

func jsonList(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	return string(b), err
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	topicIDs, err := jsonList(sess.TopicIDs)
	if err != nil {
		return fmt.Errorf("encode topic_ids: %w", err)
	}
	questionIDs, err := jsonList(sess.QuestionIDs)
	if err != nil {
		return fmt.Errorf("encode question_ids: %w", err)
	}

	ins := s.sqlb().Insert(sessionsTable).Columns(sessionColumns...).Values(
		sess.ID, nullable(sess.UserID), sess.DeviceID, sess.SubjectID, nullable(sess.TopicID), topicIDs, string(sess.Mode),
		sess.TotalQuestions, nullable(sess.TimeLimitSeconds), string(sess.Status), sess.QuestionsAnswered, sess.CorrectAnswers,
		sess.TimeSpentSeconds, sess.LastQuestionIndex, nullMillis(sess.PausedAt), questionIDs, nullable(sess.ScorePercentage),
		toMillis(sess.StartedAt), nullMillis(sess.CompletedAt),
	)
	if _, err := exec(ctx, s.db, ins); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) getSession(ctx context.Context, c conn, id string) (*session.Session, error) {
	b := s.sqlb()
	sel := b.Select(sessionColumns...).From(b.Table(sessionsTable)).Where(entsql.EQ("id", id))
	sess, err := scanSession(queryRow(ctx, c, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// GetSession returns nil, nil when the session does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.getSession(ctx, s.db, id)
}

// GetSessionAnswers returns the session's answers ordered by creation.
func (s *Store) GetSessionAnswers(ctx context.Context, sessionID string) ([]session.Answer, error) {
	b := s.sqlb()
	sel := b.Select(answerColumns...).From(b.Table(answersTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("created_at")
	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	defer rows.Close()

	var out []session.Answer
	for rows.Next() {
		var (
			a                session.Answer
			choice           sql.NullString
			level            sql.NullInt64
			first            sql.NullBool
			created, updated int64
		)
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &a.TopicID, &choice, &a.IsCorrect, &a.TimeSpentSeconds,
			&a.HintUsed, &level, &a.SolutionViewed, &a.SolutionViewedBeforeAttempt,
			&a.AttemptCount, &first, &a.Answered, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if choice.Valid {
			o := question.Option(choice.String)
			a.UserAnswer = &o
		}
		a.HintLevel = intPtr(level)
		if first.Valid {
			a.FirstAttemptCorrect = &first.Bool
		}
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateSessionAnswer inserts the answer or, for a question already
// attempted in the session, updates it. A stored first_attempt_correct is
// never overwritten.
func (s *Store) CreateSessionAnswer(ctx context.Context, a *session.Answer) error {
	now := toMillis(s.now())
	created := now
	if !a.CreatedAt.IsZero() {
		created = toMillis(a.CreatedAt)
	}
	var choice any
	if a.UserAnswer != nil {
		choice = string(*a.UserAnswer)
	}

	ins := s.sqlb().Insert(answersTable).Columns(answerColumns...).Values(
		a.SessionID, a.QuestionID, a.TopicID, choice, a.IsCorrect, a.TimeSpentSeconds,
		a.HintUsed, nullable(a.HintLevel), a.SolutionViewed, a.SolutionViewedBeforeAttempt,
		a.AttemptCount, nullable(a.FirstAttemptCorrect), a.Answered, created, now,
	).OnConflict(
		entsql.ConflictColumns("session_id", "question_id"),
		entsql.ResolveWith(func(u *entsql.UpdateSet) {
			for _, col := range []string{
				"user_answer", "is_correct", "time_spent_seconds", "hint_used", "hint_level",
				"solution_viewed", "solution_viewed_before_attempt", "attempt_count", "answered", "updated_at",
			} {
				u.SetExcluded(col)
			}
			u.Set("first_attempt_correct", entsql.Expr(
				"COALESCE("+answersTable+".first_attempt_correct, excluded.first_attempt_correct)"))
		}),
	)
	if _, err := exec(ctx, s.db, ins); err != nil {
		return fmt.Errorf("record answer %s/%s: %w", a.SessionID, a.QuestionID, err)
	}
	return nil
}

// UpdateSession applies the non-nil fields of u.
func (s *Store) UpdateSession(ctx context.Context, id string, u session.ProgressUpdate) error {
	upd := s.sqlb().Update(sessionsTable)
	fields := 0
	set := func(col string, v any) {
		upd.Set(col, v)
		fields++
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.LastQuestionIndex != nil {
		set("last_question_index", *u.LastQuestionIndex)
	}
	if u.TimeSpentSeconds != nil {
		set("time_spent_seconds", *u.TimeSpentSeconds)
	}
	if u.QuestionsAnswered != nil {
		set("questions_answered", *u.QuestionsAnswered)
	}
	if u.CorrectAnswers != nil {
		set("correct_answers", *u.CorrectAnswers)
	}
	switch {
	case u.ClearPausedAt:
		upd.SetNull("paused_at")
		fields++
	case u.PausedAt != nil:
		set("paused_at", toMillis(*u.PausedAt))
	}
	if fields == 0 {
		return nil
	}
	upd.Where(entsql.EQ("id", id))

	res, err := exec(ctx, s.db, upd)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if n, err := affected(res); err == nil && n == 0 {
		return fmt.Errorf("update session %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteSessionWithGoals marks the session completed and, for a signed-in
// user, folds it into their streak and daily goal. Completing an already
// completed session changes nothing.
func (s *Store) CompleteSessionWithGoals(ctx context.Context, c session.Completion) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		sess, err := s.getSession(ctx, tx, c.SessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("complete session %s: %w", c.SessionID, ErrNotFound)
		}
		if sess.Status == session.StatusCompleted {
			return nil
		}

		upd := s.sqlb().Update(sessionsTable).
			Set("status", string(session.StatusCompleted)).
			Set("score_percentage", c.ScorePercentage).
			Set("time_spent_seconds", c.TimeSpentSeconds).
			Set("correct_answers", c.Correct).
			Set("completed_at", toMillis(c.CompletedAt)).
			SetNull("paused_at").
			Where(entsql.And(
				entsql.EQ("id", c.SessionID),
				entsql.NEQ("status", string(session.StatusCompleted)),
			))
		if _, err := exec(ctx, tx, upd); err != nil {
			return fmt.Errorf("complete session %s: %w", c.SessionID, err)
		}

		userID := sess.UserID
		if c.UserID != nil {
			userID = c.UserID
		}
		if userID == nil || *userID == "" {
			return nil
		}

		b := s.sqlb()
		var answered int
		count := b.Select(entsql.Count("*")).From(b.Table(answersTable)).
			Where(entsql.And(entsql.EQ("session_id", c.SessionID), entsql.EQ("answered", true)))
		if err := queryRow(ctx, tx, count).Scan(&answered); err != nil {
			return fmt.Errorf("count answers: %w", err)
		}

		sum, err := s.getGoals(ctx, tx, *userID)
		if err != nil {
			return err
		}
		if sum == nil {
			sum = &goals.Summary{UserID: *userID}
		}
		next := goals.Apply(*sum, c.CompletedAt, answered, s.dailyGoal)
		return s.putGoals(ctx, tx, next)
	})
}

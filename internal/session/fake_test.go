package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sabiprep/sabiprep/internal/question"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	answers     map[string]map[string]Answer
	questions   map[string]question.Question
	selection   []string
	updates     []ProgressUpdate
	completions []Completion
	created     []string

	failAnswer   error
	failUpdate   error
	failAnswers  error
	failComplete error
}

func newFakeStore(qs ...question.Question) *fakeStore {
	s := &fakeStore{
		sessions:  make(map[string]*Session),
		answers:   make(map[string]map[string]Answer),
		questions: make(map[string]question.Question),
	}
	for _, q := range qs {
		s.questions[q.ID] = q
		s.selection = append(s.selection, q.ID)
	}
	return s
}

func (s *fakeStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) GetSessionAnswers(_ context.Context, id string) ([]Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAnswers != nil {
		return nil, s.failAnswers
	}
	var out []Answer
	for _, a := range s.answers[id] {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) GetQuestionsByIDs(_ context.Context, ids []string) ([]question.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []question.Question
	// Reverse order so callers must reconcile.
	for i := len(ids) - 1; i >= 0; i-- {
		if q, ok := s.questions[ids[i]]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateSessionAnswer(_ context.Context, a *Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAnswer != nil {
		return s.failAnswer
	}
	m, ok := s.answers[a.SessionID]
	if !ok {
		m = make(map[string]Answer)
		s.answers[a.SessionID] = m
	}
	row := *a
	if prev, ok := m[a.QuestionID]; ok {
		row.FirstAttemptCorrect = prev.FirstAttemptCorrect
		row.CreatedAt = prev.CreatedAt
	}
	m[a.QuestionID] = row
	return nil
}

func (s *fakeStore) UpdateSession(_ context.Context, id string, u ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: not found", id)
	}
	if u.Status != nil {
		sess.Status = *u.Status
	}
	if u.LastQuestionIndex != nil {
		sess.LastQuestionIndex = *u.LastQuestionIndex
	}
	if u.TimeSpentSeconds != nil {
		sess.TimeSpentSeconds = *u.TimeSpentSeconds
	}
	if u.QuestionsAnswered != nil {
		sess.QuestionsAnswered = *u.QuestionsAnswered
	}
	if u.CorrectAnswers != nil {
		sess.CorrectAnswers = *u.CorrectAnswers
	}
	if u.PausedAt != nil {
		at := *u.PausedAt
		sess.PausedAt = &at
	}
	if u.ClearPausedAt {
		sess.PausedAt = nil
	}
	s.updates = append(s.updates, u)
	return nil
}

func (s *fakeStore) CompleteSessionWithGoals(_ context.Context, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failComplete != nil {
		return s.failComplete
	}
	sess, ok := s.sessions[c.SessionID]
	if !ok {
		return fmt.Errorf("session %s: not found", c.SessionID)
	}
	if sess.Status == StatusCompleted {
		return nil
	}
	sess.Status = StatusCompleted
	score := c.ScorePercentage
	sess.ScorePercentage = &score
	sess.TimeSpentSeconds = c.TimeSpentSeconds
	s.completions = append(s.completions, c)
	return nil
}

func (s *fakeStore) CreateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.created = append(s.created, sess.ID)
	return nil
}

func (s *fakeStore) SelectQuestionIDs(_ context.Context, sel Selection) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.selection
	if sel.Limit > 0 && len(ids) > sel.Limit {
		ids = ids[:sel.Limit]
	}
	return append([]string(nil), ids...), nil
}

func (s *fakeStore) answerRow(sessionID, questionID string) (Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[sessionID][questionID]
	return a, ok
}

func (s *fakeStore) answerCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers[sessionID])
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *fakeStore) setFail(field *error, err error) {
	s.mu.Lock()
	*field = err
	s.mu.Unlock()
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

// testQuestion builds a published question whose correct answer is B.
func testQuestion(id string) question.Question {
	return question.Question{
		ID:            id,
		SubjectID:     "math",
		TopicID:       "algebra",
		Text:          "Question " + id,
		OptionA:       "one",
		OptionB:       "two",
		OptionC:       "three",
		OptionD:       "four",
		CorrectAnswer: question.OptionB,
		Solution:      strp("because two"),
		Hints: question.Hints{
			Level1: strp("first hint"),
			Level2: strp("second hint"),
			Level3: strp("third hint"),
		},
		Status: question.StatusPublished,
	}
}

func testQuestions(n int) []question.Question {
	qs := make([]question.Question, n)
	for i := range qs {
		qs[i] = testQuestion(fmt.Sprintf("q%d", i+1))
	}
	return qs
}

// seedSession stores an in-progress session over the given questions.
func seedSession(s *fakeStore, id string, mode Mode, qs []question.Question) *Session {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
		s.questions[q.ID] = q
	}
	user := "user-1"
	sess := &Session{
		ID:             id,
		UserID:         &user,
		SubjectID:      "math",
		Mode:           mode,
		TotalQuestions: len(qs),
		Status:         StatusInProgress,
		QuestionIDs:    ids,
	}
	s.sessions[id] = sess
	return sess
}

func newTestEngine(t *testing.T, s *fakeStore, clock *fakeClock, id string) *Engine {
	t.Helper()
	e := NewEngine(Config{Store: s, Now: clock.Now})
	if err := e.Initialize(context.Background(), id); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

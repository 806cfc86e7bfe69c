package admin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/question"
)

func strp(s string) *string { return &s }

func validQuestion() question.Question {
	return question.Question{
		SubjectID:     "physics",
		TopicID:       "motion",
		Text:          "What is the SI unit of force?",
		OptionA:       "Joule",
		OptionB:       "Newton",
		OptionC:       "Watt",
		OptionD:       "Pascal",
		CorrectAnswer: question.OptionB,
	}
}

type memQuestions struct {
	mu        sync.Mutex
	questions map[string]question.Question
	seq       int
	lastF     QuestionFilter
	failWith  error
}

func newMemQuestions() *memQuestions {
	return &memQuestions{questions: map[string]question.Question{}}
}

func (m *memQuestions) ListQuestions(_ context.Context, f QuestionFilter) ([]question.Question, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastF = f
	var out []question.Question
	for _, q := range m.questions {
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		out = append(out, q)
	}
	return out, len(out), nil
}

func (m *memQuestions) GetQuestion(_ context.Context, id string) (*question.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *memQuestions) CreateQuestion(_ context.Context, q *question.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.seq++
	q.ID = fmt.Sprintf("q%d", m.seq)
	m.questions[q.ID] = *q
	return nil
}

func (m *memQuestions) UpdateQuestion(_ context.Context, q *question.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; !ok {
		return fmt.Errorf("no question %s", q.ID)
	}
	m.questions[q.ID] = *q
	return nil
}

func (m *memQuestions) SetQuestionStatus(_ context.Context, ids []string, status question.Status, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		q, ok := m.questions[id]
		if !ok {
			continue
		}
		q.Status, q.UpdatedAt = status, at
		m.questions[id] = q
		n++
	}
	return n, nil
}

func (m *memQuestions) DeleteQuestions(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.questions[id]; ok {
			delete(m.questions, id)
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	users map[string]User
}

func (m *memUsers) GetUser(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *memUsers) UpdateUserRole(_ context.Context, id string, role auth.Role, at time.Time) error {
	u := m.users[id]
	u.Role, u.UpdatedAt = role, at
	m.users[id] = u
	return nil
}

func (m *memUsers) UpdateUserStatus(_ context.Context, id string, status UserStatus, at time.Time) error {
	u := m.users[id]
	u.Status, u.UpdatedAt = status, at
	m.users[id] = u
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) AppendAudit(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) ListAudit(_ context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *memAudit) actions() []audit.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Action, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sabiprep/sabiprep/internal/guest"
)

// DefaultQuestionCount is used when a start request leaves the count unset.
const DefaultQuestionCount = 20

// ErrInvalidStart is returned (wrapped) for malformed start requests.
var ErrInvalidStart = errors.New("invalid session request")

// StartRequest describes a new session. UserID is empty for guests, who are
// identified by DeviceID instead.
type StartRequest struct {
	UserID           string   `json:"-"`
	DeviceID         string   `json:"-"`
	SubjectID        string   `json:"subject_id" validate:"required"`
	TopicIDs         []string `json:"topic_ids"`
	Mode             Mode     `json:"mode" validate:"omitempty,oneof=practice test timed"`
	TotalQuestions   int      `json:"total_questions" validate:"min=0,max=100"`
	TimeLimitSeconds int      `json:"time_limit_seconds" validate:"min=0"`
}

// GateFunc returns the guest gate for a device.
type GateFunc func(deviceID string) GuestGate

// Manager keeps one engine per live session.
type Manager struct {
	cfg      Config
	gates    GateFunc
	validate *validator.Validate

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager returns a manager. gates may be nil when guests are not served.
func NewManager(cfg Config, gates GateFunc) *Manager {
	return &Manager{
		cfg:      cfg,
		gates:    gates,
		validate: validator.New(),
		engines:  make(map[string]*Engine),
	}
}

// Start freezes a question set and opens an engine on it. Authenticated
// sessions are persisted; guest sessions live only in memory.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Engine, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStart, err)
	}
	if req.Mode == "" {
		req.Mode = ModePractice
	}
	if req.Mode == ModeTimed && req.TimeLimitSeconds <= 0 {
		return nil, fmt.Errorf("%w: timed mode needs a time limit", ErrInvalidStart)
	}
	if req.UserID == "" && req.DeviceID == "" {
		return nil, fmt.Errorf("%w: no learner identity", ErrInvalidStart)
	}
	if req.TotalQuestions == 0 {
		req.TotalQuestions = DefaultQuestionCount
	}

	ids, err := m.cfg.Store.SelectQuestionIDs(ctx, Selection{
		SubjectID: req.SubjectID,
		TopicIDs:  req.TopicIDs,
		Limit:     req.TotalQuestions,
	})
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoQuestions
	}

	now := time.Now()
	if m.cfg.Now != nil {
		now = m.cfg.Now()
	}
	sess := &Session{
		SubjectID:      req.SubjectID,
		TopicIDs:       req.TopicIDs,
		Mode:           req.Mode,
		TotalQuestions: len(ids),
		Status:         StatusInProgress,
		QuestionIDs:    ids,
		StartedAt:      now,
	}
	if len(req.TopicIDs) == 1 {
		topic := req.TopicIDs[0]
		sess.TopicID = &topic
	}
	if req.TimeLimitSeconds > 0 {
		limit := req.TimeLimitSeconds
		sess.TimeLimitSeconds = &limit
	}

	e := NewEngine(m.cfg)
	if req.UserID == "" {
		sess.ID = guest.SessionPrefix + uuid.NewString()
		sess.DeviceID = req.DeviceID
		var gate GuestGate
		if m.gates != nil {
			gate = m.gates(req.DeviceID)
		}
		if err := e.InitializeGuest(ctx, sess, gate); err != nil {
			return nil, err
		}
	} else {
		sess.ID = uuid.NewString()
		userID := req.UserID
		sess.UserID = &userID
		if err := m.cfg.Store.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		if err := e.Initialize(ctx, sess.ID); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.engines[sess.ID] = e
	m.mu.Unlock()
	return e, nil
}

// Open returns the live engine for id, loading it from the store if needed.
// Guest sessions that are no longer in memory are not found.
func (m *Manager) Open(ctx context.Context, id string) (*Engine, error) {
	m.mu.Lock()
	e, ok := m.engines[id]
	m.mu.Unlock()
	if ok {
		return e, nil
	}

	e = NewEngine(m.cfg)
	if err := e.Initialize(ctx, id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.engines[id]; ok {
		e.Close()
		return existing, nil
	}
	m.engines[id] = e
	return e, nil
}

// Drop stops and forgets the engine for id.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	e, ok := m.engines[id]
	delete(m.engines, id)
	m.mu.Unlock()
	if ok {
		e.Close()
	}
}

// Evict drops engines idle for longer than maxIdle and returns how many
// were dropped.
func (m *Manager) Evict(maxIdle time.Duration) int {
	now := time.Now()
	if m.cfg.Now != nil {
		now = m.cfg.Now()
	}
	m.mu.Lock()
	var stale []*Engine
	for id, e := range m.engines {
		if now.Sub(e.idleSince()) > maxIdle {
			stale = append(stale, e)
			delete(m.engines, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		e.Close()
	}
	return len(stale)
}

// RunJanitor evicts idle engines every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Evict(maxIdle); n > 0 && m.cfg.Logger != nil {
				m.cfg.Logger.Info("evicted idle sessions", "count", n)
			}
		}
	}
}

// Len returns the number of live engines.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

// Shutdown stops every engine's background work.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	engines := m.engines
	m.engines = make(map[string]*Engine)
	m.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}

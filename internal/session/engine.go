package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sabiprep/sabiprep/internal/guest"
	"github.com/sabiprep/sabiprep/internal/question"
)

// DefaultAutosaveInterval is how often in-progress sessions push progress.
const DefaultAutosaveInterval = 30 * time.Second

// Config holds the engine's collaborators.
type Config struct {
	Store            Store
	Logger           *slog.Logger
	AutosaveInterval time.Duration
	Now              func() time.Time
}

// Engine owns the state of one live session. All methods are safe for
// concurrent use; calls are serialised.
type Engine struct {
	mu sync.Mutex

	store            Store
	logger           *slog.Logger
	now              func() time.Time
	autosaveInterval time.Duration

	sessionID string
	sess      *Session
	guest     bool
	gate      GuestGate

	questions []question.Question
	records   []QuestionRecord
	index     int
	cur       cursor
	missing   int

	signupRequired bool

	rev      uint64
	writer   *ProgressWriter
	autosave *autosaver

	activeSince time.Time
	elapsedBase time.Duration
	result      *Result
	lastActive  time.Time
}

// NewEngine returns an engine in the loading phase.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		store:            cfg.Store,
		logger:           cfg.Logger,
		now:              cfg.Now,
		autosaveInterval: cfg.AutosaveInterval,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Initialize loads a persisted session, its answers and its questions.
func (e *Engine) Initialize(ctx context.Context, sessionID string) error {
	if guest.IsGuestSession(sessionID) {
		return ErrSessionNotFound
	}
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	answers, err := e.store.GetSessionAnswers(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load(ctx, sess, answers)
}

// InitializeGuest loads an in-memory guest session. Its progress is never
// written to the store.
func (e *Engine) InitializeGuest(ctx context.Context, sess *Session, gate GuestGate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guest = true
	e.gate = gate
	return e.load(ctx, sess, nil)
}

func (e *Engine) load(ctx context.Context, sess *Session, answers []Answer) error {
	// Question order: frozen ids, then answer history, then a fresh pick.
	ids := sess.QuestionIDs
	if len(ids) == 0 {
		ids = fallbackIDs(answers)
	}
	if len(ids) == 0 {
		picked, err := e.store.SelectQuestionIDs(ctx, Selection{
			SubjectID: sess.SubjectID,
			TopicIDs:  topicsOf(sess),
			Limit:     sess.TotalQuestions,
		})
		if err != nil {
			return fmt.Errorf("select questions: %w", err)
		}
		ids = picked
	}
	if len(ids) == 0 {
		return ErrNoQuestions
	}

	found, err := e.store.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	qs, missing := reconcile(ids, found)
	if len(missing) > 0 {
		e.logger.Warn("session questions missing",
			"session_id", sess.ID, "missing", len(missing), "expected", len(ids))
	}
	if len(qs) == 0 {
		return ErrNoQuestions
	}

	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	records := make([]QuestionRecord, len(qs))
	answered, correct := 0, 0
	for i, q := range qs {
		a, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		records[i] = recordFromAnswer(a)
		if records[i].Answered {
			answered++
			if records[i].Correct {
				correct++
			}
		}
	}

	s := *sess
	s.QuestionIDs = ids
	s.QuestionsAnswered = answered
	s.CorrectAnswers = correct
	if s.TotalQuestions == 0 {
		s.TotalQuestions = len(qs)
	}

	e.sessionID = s.ID
	e.sess = &s
	e.questions = qs
	e.records = records
	e.missing = len(missing)
	e.writer = NewProgressWriter(e.store, s.ID)
	e.elapsedBase = time.Duration(s.TimeSpentSeconds) * time.Second
	e.lastActive = e.now()

	start := 0
	if s.Status == StatusInProgress || s.Status == StatusPaused {
		start = clamp(s.LastQuestionIndex, 0, len(qs)-1)
	}
	if s.Status == StatusInProgress {
		e.activeSince = e.now()
		e.startAutosave()
	}
	if s.Status == StatusCompleted {
		score := Score(correct, e.scoreTotal())
		if s.ScorePercentage != nil {
			score = *s.ScorePercentage
		}
		e.result = &Result{
			Correct:          correct,
			Total:            e.scoreTotal(),
			ScorePercentage:  score,
			ScoreDisplay:     ScoreDisplay(score),
			TimeSpentSeconds: s.TimeSpentSeconds,
		}
	}
	e.enter(start)
	return nil
}

// SelectAnswer records a choice for the current question. A wrong choice
// leaves the question open for a retry unless force is set. Every call that
// passes validation counts one attempt, including repeats on an answered
// question.
func (e *Engine) SelectAnswer(ctx context.Context, questionID string, choice question.Option, force bool) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	e.lastActive = e.now()
	if e.sess.Status != StatusInProgress {
		return e.view(), ErrSessionClosed
	}
	q := &e.questions[e.index]
	if q.ID != questionID {
		return e.view(), ErrNotCurrent
	}
	if _, ok := q.OptionText(choice); !ok {
		return e.view(), ErrInvalidChoice
	}
	if e.expired() {
		if _, err := e.complete(ctx); err != nil {
			e.logger.Warn("complete on expiry failed", "session_id", e.sessionID, "error", err)
		}
		return e.view(), ErrTimeExpired
	}
	if e.guest && e.gate != nil {
		reached, err := e.gate.HasReachedLimit(ctx)
		if err != nil {
			return e.view(), fmt.Errorf("check guest limit: %w", err)
		}
		if reached {
			e.signupRequired = true
			return e.view(), ErrGuestLimitReached
		}
	}

	now := e.now()
	rec := e.records[e.index]
	correct := q.IsCorrect(choice)
	rec.Attempts++
	if rec.FirstAttemptCorrect == nil {
		first := correct
		rec.FirstAttemptCorrect = &first
	}

	// A retry, or a repeat on an answered question: the attempt is stored but
	// the counters stay put.
	if rec.Answered || (!correct && !force) {
		if !rec.Answered {
			rec.Choice = choice
		}
		if err := e.saveRecord(ctx, rec, now); err != nil {
			return e.view(), fmt.Errorf("record attempt: %w", err)
		}
		e.records[e.index] = rec
		e.cur.selected = choice
		return e.view(), nil
	}

	rec.Answered = true
	rec.Correct = correct
	rec.Choice = choice
	rec.TimeSpent += now.Sub(e.cur.enteredAt)

	answered := e.sess.QuestionsAnswered + 1
	correctN := e.sess.CorrectAnswers
	if correct {
		correctN++
	}

	rev := e.rev
	if e.guest {
		if e.gate != nil {
			total, err := e.gate.Increment(ctx)
			if errors.Is(err, guest.ErrLimitReached) {
				e.signupRequired = true
				return e.view(), ErrGuestLimitReached
			}
			if err != nil {
				return e.view(), fmt.Errorf("count guest answer: %w", err)
			}
			if total >= e.gate.Limit() {
				e.signupRequired = true
			}
		}
	} else {
		if err := e.store.CreateSessionAnswer(ctx, rec.toAnswer(e.sessionID, q, now)); err != nil {
			return e.view(), fmt.Errorf("record answer: %w", err)
		}
		// The answer row may now be ahead of the session row. A repeat call
		// rewrites the same row, and a reload recounts from the rows.
		idx := e.index
		spent := int(e.elapsed() / time.Second)
		rev++
		if _, err := e.writer.Write(ctx, rev, ProgressUpdate{
			QuestionsAnswered: &answered,
			CorrectAnswers:    &correctN,
			LastQuestionIndex: &idx,
			TimeSpentSeconds:  &spent,
		}); err != nil {
			return e.view(), fmt.Errorf("save progress: %w", err)
		}
	}

	e.rev = rev
	e.records[e.index] = rec
	e.sess.QuestionsAnswered = answered
	e.sess.CorrectAnswers = correctN
	e.cur.selected = choice
	e.cur.solutionVisible = true
	e.cur.enteredAt = now
	return e.view(), nil
}

// saveRecord upserts the answer row for the current question. Guest
// sessions have no rows, and neither does a question with no submission.
func (e *Engine) saveRecord(ctx context.Context, rec QuestionRecord, now time.Time) error {
	if e.guest || rec.Attempts == 0 {
		return nil
	}
	return e.store.CreateSessionAnswer(ctx, rec.toAnswer(e.sessionID, &e.questions[e.index], now))
}

// RequestHint reveals hint level for the current question. Levels unlock
// strictly in order; a locked level leaves state unchanged.
func (e *Engine) RequestHint(ctx context.Context, level int) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	e.lastActive = e.now()
	if e.sess.Status != StatusInProgress {
		return e.view(), ErrSessionClosed
	}
	rec := &e.records[e.index]
	if rec.Answered {
		return e.view(), ErrQuestionAnswered
	}
	if level < 1 || level > rec.MaxHintLevel+1 {
		return e.view(), ErrHintLocked
	}
	if level <= rec.MaxHintLevel {
		return e.view(), nil
	}
	if _, ok := question.HintAt(&e.questions[e.index], level); !ok {
		return e.view(), nil
	}
	next := *rec
	next.MaxHintLevel = level
	if err := e.saveRecord(ctx, next, e.now()); err != nil {
		return e.view(), fmt.Errorf("record hint: %w", err)
	}
	*rec = next
	return e.view(), nil
}

// ToggleSolution flips solution visibility for the current question. The
// first reveal marks the solution viewed, and viewed before an attempt if
// the question is still open.
func (e *Engine) ToggleSolution(ctx context.Context) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	e.lastActive = e.now()
	if e.sess.Status == StatusPaused {
		return e.view(), ErrSessionClosed
	}
	rec := &e.records[e.index]
	visible := !e.cur.solutionVisible
	if visible && !rec.SolutionViewed {
		next := *rec
		next.SolutionViewed = true
		if !next.Answered {
			next.SolutionViewedBeforeAttempt = true
		}
		if e.sess.Status == StatusInProgress {
			if err := e.saveRecord(ctx, next, e.now()); err != nil {
				return e.view(), fmt.Errorf("record solution view: %w", err)
			}
		}
		*rec = next
	}
	e.cur.solutionVisible = visible
	return e.view(), nil
}

// Advance moves to the next question. An in-progress session only moves
// forward once the current question is answered.
func (e *Engine) Advance() (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	return e.jump(e.index + 1)
}

// Retreat moves to the previous question.
func (e *Engine) Retreat() (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	return e.jump(e.index - 1)
}

// Jump moves to index, clamped to the session bounds.
func (e *Engine) Jump(index int) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	return e.jump(index)
}

func (e *Engine) jump(index int) (View, error) {
	e.lastActive = e.now()
	if e.sess.Status == StatusPaused {
		return e.view(), ErrSessionClosed
	}
	index = clamp(index, 0, len(e.questions)-1)
	if index == e.index {
		return e.view(), nil
	}
	if index > e.index && e.sess.Status == StatusInProgress && !e.records[e.index].Answered {
		return e.view(), ErrNotAnswered
	}
	e.accrue()
	e.enter(index)
	e.rev++
	return e.view(), nil
}

// Pause stops the clock and autosave and persists the position.
func (e *Engine) Pause(ctx context.Context) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	e.lastActive = e.now()
	switch e.sess.Status {
	case StatusCompleted:
		return e.view(), ErrAlreadyCompleted
	case StatusPaused:
		return e.view(), nil
	}

	now := e.now()
	elapsed := e.elapsed()
	rev := e.rev
	if !e.guest {
		status := StatusPaused
		idx := e.index
		spent := int(elapsed / time.Second)
		answered, correct := e.sess.QuestionsAnswered, e.sess.CorrectAnswers
		rev++
		if _, err := e.writer.Write(ctx, rev, ProgressUpdate{
			Status:            &status,
			PausedAt:          &now,
			LastQuestionIndex: &idx,
			TimeSpentSeconds:  &spent,
			QuestionsAnswered: &answered,
			CorrectAnswers:    &correct,
		}); err != nil {
			return e.view(), fmt.Errorf("pause session: %w", err)
		}
	}

	e.rev = rev
	e.accrue()
	e.elapsedBase = elapsed
	e.activeSince = time.Time{}
	e.sess.Status = StatusPaused
	e.sess.PausedAt = &now
	e.sess.TimeSpentSeconds = int(elapsed / time.Second)
	e.sess.LastQuestionIndex = e.index
	e.stopAutosave()
	return e.view(), nil
}

// Resume restarts a paused session.
func (e *Engine) Resume(ctx context.Context) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return View{}, ErrSessionNotFound
	}
	e.lastActive = e.now()
	switch e.sess.Status {
	case StatusCompleted:
		return e.view(), ErrAlreadyCompleted
	case StatusInProgress:
		return e.view(), nil
	}

	rev := e.rev
	if !e.guest {
		status := StatusInProgress
		rev++
		if _, err := e.writer.Write(ctx, rev, ProgressUpdate{
			Status:        &status,
			ClearPausedAt: true,
		}); err != nil {
			return e.view(), fmt.Errorf("resume session: %w", err)
		}
	}

	now := e.now()
	e.rev = rev
	e.sess.Status = StatusInProgress
	e.sess.PausedAt = nil
	e.activeSince = now
	e.cur.enteredAt = now
	e.startAutosave()
	return e.view(), nil
}

// Complete finishes the session, scores it and updates goals. Completing an
// already completed session returns the stored result.
func (e *Engine) Complete(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return Result{}, ErrSessionNotFound
	}
	e.lastActive = e.now()
	return e.complete(ctx)
}

func (e *Engine) complete(ctx context.Context) (Result, error) {
	if e.sess.Status == StatusCompleted && e.result != nil {
		return *e.result, nil
	}

	correct := 0
	for _, r := range e.records {
		if r.Answered && r.Correct {
			correct++
		}
	}
	total := e.scoreTotal()
	score := Score(correct, total)
	spent := e.answerTime(ctx)

	now := e.now()
	if !e.guest {
		if err := e.store.CompleteSessionWithGoals(ctx, Completion{
			SessionID:        e.sessionID,
			UserID:           e.sess.UserID,
			ScorePercentage:  score,
			TimeSpentSeconds: spent,
			Correct:          correct,
			Total:            total,
			CompletedAt:      now,
		}); err != nil {
			return Result{}, fmt.Errorf("complete session: %w", err)
		}
	}

	e.rev++
	e.accrue()
	e.stopAutosave()
	e.elapsedBase = e.elapsed()
	e.activeSince = time.Time{}
	e.sess.Status = StatusCompleted
	e.sess.CompletedAt = &now
	e.sess.PausedAt = nil
	e.sess.ScorePercentage = &score
	e.sess.TimeSpentSeconds = spent
	e.result = &Result{
		Correct:          correct,
		Total:            total,
		ScorePercentage:  score,
		ScoreDisplay:     ScoreDisplay(score),
		TimeSpentSeconds: spent,
	}
	e.logger.Info("session completed",
		"session_id", e.sessionID, "correct", correct, "total", total, "guest", e.guest)
	return *e.result, nil
}

// scoreTotal is the score denominator. Questions that no longer resolve
// still count against it.
func (e *Engine) scoreTotal() int {
	if e.sess.TotalQuestions > 0 {
		return e.sess.TotalQuestions
	}
	return len(e.questions)
}

// answerTime sums per-answer time, falling back to the session clock when
// the answers cannot be read.
func (e *Engine) answerTime(ctx context.Context) int {
	if e.guest {
		var d time.Duration
		for _, r := range e.records {
			d += r.TimeSpent
		}
		return int(d / time.Second)
	}
	answers, err := e.store.GetSessionAnswers(ctx, e.sessionID)
	if err != nil {
		e.logger.Warn("sum answer time failed", "session_id", e.sessionID, "error", err)
		return int(e.elapsed() / time.Second)
	}
	sum := 0
	for _, a := range answers {
		sum += a.TimeSpentSeconds
	}
	return sum
}

// View returns the current render snapshot.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return View{Phase: PhaseLoading}
	}
	return e.view()
}

// Session returns a copy of the session row as the engine sees it.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return Session{}
	}
	s := *e.sess
	if s.Status != StatusCompleted {
		s.TimeSpentSeconds = int(e.elapsed() / time.Second)
		s.LastQuestionIndex = e.index
	}
	return s
}

// BelongsTo reports whether the session is owned by the user, or for guest
// sessions by the device.
func (e *Engine) BelongsTo(userID, deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return false
	}
	if e.sess.UserID != nil {
		return *e.sess.UserID == userID
	}
	return e.sess.DeviceID != "" && e.sess.DeviceID == deviceID
}

// Close stops background work. The engine stays readable.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAutosave()
}

// idleSince reports when the engine was last used.
func (e *Engine) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

// enter makes idx current and restores its per-question view state from
// history. Caller holds e.mu.
func (e *Engine) enter(idx int) {
	e.index = idx
	rec := e.records[idx]
	e.cur = cursor{
		solutionVisible: rec.SolutionViewed || rec.Answered,
		enteredAt:       e.now(),
	}
	if rec.Answered {
		e.cur.selected = rec.Choice
	}
}

// accrue adds time on the current open question to its record.
func (e *Engine) accrue() {
	if e.activeSince.IsZero() || e.records[e.index].Answered {
		return
	}
	now := e.now()
	e.records[e.index].TimeSpent += now.Sub(e.cur.enteredAt)
	e.cur.enteredAt = now
}

func (e *Engine) elapsed() time.Duration {
	if e.activeSince.IsZero() {
		return e.elapsedBase
	}
	return e.elapsedBase + e.now().Sub(e.activeSince)
}

func (e *Engine) expired() bool {
	limit, ok := e.timeLimit()
	return ok && e.elapsed() >= limit
}

func (e *Engine) timeLimit() (time.Duration, bool) {
	if e.sess.Mode != ModeTimed || e.sess.TimeLimitSeconds == nil || *e.sess.TimeLimitSeconds <= 0 {
		return 0, false
	}
	return time.Duration(*e.sess.TimeLimitSeconds) * time.Second, true
}

func (e *Engine) phase() Phase {
	switch e.sess.Status {
	case StatusCompleted:
		return PhaseCompleted
	case StatusPaused:
		return PhasePaused
	}
	switch {
	case e.records[e.index].Answered:
		return PhaseReviewing
	case e.cur.selected != "":
		return PhaseAnswering
	default:
		return PhaseReady
	}
}

func (e *Engine) view() View {
	v := View{
		SessionID:         e.sessionID,
		Mode:              e.sess.Mode,
		Status:            e.sess.Status,
		Phase:             e.phase(),
		CurrentIndex:      e.index,
		TotalQuestions:    len(e.questions),
		QuestionsAnswered: e.sess.QuestionsAnswered,
		CorrectAnswers:    e.sess.CorrectAnswers,
		ElapsedSeconds:    int(e.elapsed() / time.Second),
		SignupRequired:    e.signupRequired,
		MissingQuestions:  e.missing,
		Palette:           make([]PaletteItem, len(e.questions)),
	}
	if limit, ok := e.timeLimit(); ok {
		remaining := int((limit - e.elapsed()) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		v.RemainingSeconds = &remaining
	}
	var prev *question.Question
	if e.index > 0 {
		prev = &e.questions[e.index-1]
	}
	v.Question = buildQuestionView(&e.questions[e.index], prev, e.records[e.index], e.cur)
	for i, r := range e.records {
		v.Palette[i] = PaletteItem{Index: i, Answered: r.Answered, Correct: r.Answered && r.Correct, Current: i == e.index}
	}
	if e.result != nil {
		res := *e.result
		v.Result = &res
	}
	return v
}

func topicsOf(s *Session) []string {
	if len(s.TopicIDs) > 0 {
		return s.TopicIDs
	}
	if s.TopicID != nil && *s.TopicID != "" {
		return []string{*s.TopicID}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

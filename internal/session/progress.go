package session

import (
	"context"
	"sync"
	"time"
)

// ProgressWriter serialises writes of one session's progress. Every write
// carries the engine revision it was snapshotted at; a write older than the
// last applied one is dropped, so a slow autosave never overwrites a newer
// explicit write.
type ProgressWriter struct {
	mu        sync.Mutex
	store     Store
	sessionID string
	applied   uint64
}

// NewProgressWriter returns a writer for one session.
func NewProgressWriter(store Store, sessionID string) *ProgressWriter {
	return &ProgressWriter{store: store, sessionID: sessionID}
}

// Write applies u if rev is newer than the last applied revision. It reports
// whether the write reached the store.
func (w *ProgressWriter) Write(ctx context.Context, rev uint64, u ProgressUpdate) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rev <= w.applied {
		return false, nil
	}
	if err := w.store.UpdateSession(ctx, w.sessionID, u); err != nil {
		return false, err
	}
	w.applied = rev
	return true, nil
}

// Applied returns the last revision that reached the store.
func (w *ProgressWriter) Applied() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applied
}

// autosaver periodically pushes progress while a session is in progress.
type autosaver struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startAutosave launches the periodic task. Caller holds e.mu.
func (e *Engine) startAutosave() {
	if e.guest || e.autosaveInterval <= 0 || e.autosave != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &autosaver{cancel: cancel, done: make(chan struct{})}
	e.autosave = a
	go e.autosaveLoop(ctx, a.done)
}

// stopAutosave cancels the periodic task without waiting for it, since
// the task itself takes e.mu. Caller holds e.mu.
func (e *Engine) stopAutosave() {
	if e.autosave == nil {
		return
	}
	e.autosave.cancel()
	e.autosave = nil
}

func (e *Engine) autosaveLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.autosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.AutosaveOnce(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("autosave failed", "session_id", e.sessionID, "error", err)
			}
		}
	}
}

// AutosaveOnce pushes the current progress snapshot if the session is in
// progress. Failures are returned for logging only; they never change
// engine state.
func (e *Engine) AutosaveOnce(ctx context.Context) error {
	e.mu.Lock()
	if e.guest || e.sess == nil || e.sess.Status != StatusInProgress {
		e.mu.Unlock()
		return nil
	}
	rev, u := e.rev, e.progressSnapshot()
	writer := e.writer
	e.mu.Unlock()

	wrote, err := writer.Write(ctx, rev, u)
	if wrote {
		e.logger.Debug("autosaved", "session_id", e.sessionID, "rev", rev)
	}
	return err
}

// progressSnapshot captures the autosave payload. Caller holds e.mu.
func (e *Engine) progressSnapshot() ProgressUpdate {
	answered, correct := e.sess.QuestionsAnswered, e.sess.CorrectAnswers
	idx := e.index
	return ProgressUpdate{
		QuestionsAnswered: &answered,
		CorrectAnswers:    &correct,
		LastQuestionIndex: &idx,
	}
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sabiprep/sabiprep/internal/question"
)

func TestProgressWriter_DropsStaleRevisions(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedSession(s, "s1", ModePractice, testQuestions(3))
	w := NewProgressWriter(s, "s1")

	newer, older := 2, 1
	if ok, err := w.Write(ctx, 5, ProgressUpdate{LastQuestionIndex: &newer}); !ok || err != nil {
		t.Fatalf("Write(5) = %v, %v", ok, err)
	}
	ok, err := w.Write(ctx, 4, ProgressUpdate{LastQuestionIndex: &older})
	if ok || err != nil {
		t.Errorf("stale Write(4) = %v, %v; want dropped", ok, err)
	}
	if got := s.sessions["s1"].LastQuestionIndex; got != 2 {
		t.Errorf("LastQuestionIndex = %d, want 2", got)
	}
	if w.Applied() != 5 {
		t.Errorf("Applied = %d, want 5", w.Applied())
	}
}

func TestProgressWriter_FailureKeepsRevision(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedSession(s, "s1", ModePractice, testQuestions(1))
	w := NewProgressWriter(s, "s1")

	s.setFail(&s.failUpdate, errBoom)
	if _, err := w.Write(ctx, 1, ProgressUpdate{}); !errors.Is(err, errBoom) {
		t.Fatalf("Write = %v, want errBoom", err)
	}
	if w.Applied() != 0 {
		t.Errorf("Applied = %d after failure, want 0", w.Applied())
	}
}

func TestAutosaveOnce_SkipsUnchangedProgress(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedSession(s, "s1", ModePractice, testQuestions(3))
	e := newTestEngine(t, s, newFakeClock(), "s1")

	if _, err := e.SelectAnswer(ctx, "q1", question.OptionB, false); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if s.updateCount() != 1 {
		t.Fatalf("updates = %d, want 1", s.updateCount())
	}
	if err := e.AutosaveOnce(ctx); err != nil {
		t.Fatalf("AutosaveOnce: %v", err)
	}
	if s.updateCount() != 1 {
		t.Errorf("autosave rewrote unchanged progress")
	}

	if _, err := e.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := e.AutosaveOnce(ctx); err != nil {
		t.Fatalf("AutosaveOnce: %v", err)
	}
	if s.updateCount() != 2 {
		t.Fatalf("updates = %d, want 2", s.updateCount())
	}
	stored := s.sessions["s1"]
	if stored.LastQuestionIndex != 1 || stored.QuestionsAnswered != 1 || stored.CorrectAnswers != 1 {
		t.Errorf("stored progress = %d/%d/%d", stored.LastQuestionIndex, stored.QuestionsAnswered, stored.CorrectAnswers)
	}
}

func TestAutosaveOnce_FailureDoesNotChangeState(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedSession(s, "s1", ModePractice, testQuestions(3))
	e := newTestEngine(t, s, newFakeClock(), "s1")
	if _, err := e.SelectAnswer(ctx, "q1", question.OptionB, false); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := e.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	before := e.View()

	s.setFail(&s.failUpdate, errBoom)
	if err := e.AutosaveOnce(ctx); !errors.Is(err, errBoom) {
		t.Fatalf("AutosaveOnce = %v, want errBoom", err)
	}
	after := e.View()
	if after.CurrentIndex != before.CurrentIndex || after.QuestionsAnswered != before.QuestionsAnswered {
		t.Error("failed autosave changed engine state")
	}
}

func TestAutosaveOnce_IgnoresPausedSessions(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedSession(s, "s1", ModePractice, testQuestions(2))
	e := newTestEngine(t, s, newFakeClock(), "s1")

	if _, err := e.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	n := s.updateCount()
	if err := e.AutosaveOnce(ctx); err != nil {
		t.Fatalf("AutosaveOnce: %v", err)
	}
	if s.updateCount() != n {
		t.Error("autosave wrote a paused session")
	}
}

func TestAutosaveLoop_PushesUntilPaused(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	seedSession(s, "s1", ModePractice, testQuestions(3))
	e := NewEngine(Config{Store: s, AutosaveInterval: 5 * time.Millisecond, Now: newFakeClock().Now})
	if err := e.Initialize(ctx, "s1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Close()

	if _, err := e.SelectAnswer(ctx, "q1", question.OptionB, false); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := e.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.updateCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("autosave did not push the navigation")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := e.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	n := s.updateCount()
	time.Sleep(30 * time.Millisecond)
	if s.updateCount() != n {
		t.Errorf("updates grew from %d to %d after pause", n, s.updateCount())
	}
}

package session

import (
	"math"
	"sort"
	"time"

	"github.com/sabiprep/sabiprep/internal/question"
)

// QuestionRecord is the engine's state for one question within a session.
type QuestionRecord struct {
	Attempts                    int
	MaxHintLevel                int
	SolutionViewed              bool
	SolutionViewedBeforeAttempt bool
	FirstAttemptCorrect         *bool
	Answered                    bool
	Correct                     bool
	Choice                      question.Option
	TimeSpent                   time.Duration
}

// recordFromAnswer rebuilds a record from a persisted answer row.
func recordFromAnswer(a Answer) QuestionRecord {
	r := QuestionRecord{
		Attempts:                    a.AttemptCount,
		SolutionViewed:              a.SolutionViewed,
		SolutionViewedBeforeAttempt: a.SolutionViewedBeforeAttempt,
		FirstAttemptCorrect:         a.FirstAttemptCorrect,
		Answered:                    a.Answered,
		Correct:                     a.Answered && a.IsCorrect,
		TimeSpent:                   time.Duration(a.TimeSpentSeconds) * time.Second,
	}
	if a.HintLevel != nil {
		r.MaxHintLevel = *a.HintLevel
	}
	if a.UserAnswer != nil {
		r.Choice = *a.UserAnswer
	}
	if r.Attempts < 1 {
		r.Attempts = 1
	}
	return r
}

// toAnswer builds the row persisted on every submission for a question.
func (r QuestionRecord) toAnswer(sessionID string, q *question.Question, now time.Time) *Answer {
	choice := r.Choice
	a := &Answer{
		SessionID:                   sessionID,
		QuestionID:                  q.ID,
		TopicID:                     q.TopicID,
		UserAnswer:                  &choice,
		IsCorrect:                   r.Answered && r.Correct,
		TimeSpentSeconds:            int(r.TimeSpent / time.Second),
		HintUsed:                    r.MaxHintLevel > 0,
		SolutionViewed:              r.SolutionViewed,
		SolutionViewedBeforeAttempt: r.SolutionViewedBeforeAttempt,
		AttemptCount:                r.Attempts,
		FirstAttemptCorrect:         r.FirstAttemptCorrect,
		Answered:                    r.Answered,
		CreatedAt:                   now,
	}
	if r.MaxHintLevel > 0 {
		level := r.MaxHintLevel
		a.HintLevel = &level
	}
	return a
}

// cursor is the transient per-question UI state. It resets whenever the
// current question changes.
type cursor struct {
	selected        question.Option
	solutionVisible bool
	enteredAt       time.Time
}

// reconcile orders questions to match ids and reports the ids that did not
// resolve.
func reconcile(ids []string, found []question.Question) ([]question.Question, []string) {
	byID := make(map[string]question.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	ordered := make([]question.Question, 0, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		q, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, q)
	}
	return ordered, missing
}

// fallbackIDs derives a question order from recorded answers, oldest first.
func fallbackIDs(answers []Answer) []string {
	sorted := make([]Answer, len(answers))
	copy(sorted, answers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	ids := make([]string, 0, len(sorted))
	for _, a := range sorted {
		ids = append(ids, a.QuestionID)
	}
	return ids
}

// Score returns correct/total as a percentage at full precision.
func Score(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) * 100 / float64(total)
}

// ScoreDisplay rounds a score for presentation.
func ScoreDisplay(score float64) int {
	return int(math.Round(score))
}

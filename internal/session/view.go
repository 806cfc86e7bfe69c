package session

import (
	"github.com/sabiprep/sabiprep/internal/question"
)

// View is a render-ready snapshot of an engine.
type View struct {
	SessionID         string        `json:"session_id"`
	Mode              Mode          `json:"mode"`
	Status            Status        `json:"status"`
	Phase             Phase         `json:"phase"`
	CurrentIndex      int           `json:"current_index"`
	TotalQuestions    int           `json:"total_questions"`
	QuestionsAnswered int           `json:"questions_answered"`
	CorrectAnswers    int           `json:"correct_answers"`
	ElapsedSeconds    int           `json:"elapsed_seconds"`
	RemainingSeconds  *int          `json:"remaining_seconds,omitempty"`
	SignupRequired    bool          `json:"signup_required"`
	MissingQuestions  int           `json:"missing_questions,omitempty"`
	Question          *QuestionView `json:"question,omitempty"`
	Palette           []PaletteItem `json:"palette"`
	Result            *Result       `json:"result,omitempty"`
}

// OptionView is one answer choice.
type OptionView struct {
	Letter question.Option `json:"letter"`
	Text   string          `json:"text"`
}

// QuestionView is the current question as the learner should see it.
type QuestionView struct {
	ID                          string           `json:"id"`
	TopicID                     string           `json:"topic_id"`
	Text                        string           `json:"question_text"`
	Passage                     *string          `json:"passage,omitempty"`
	ShowPassage                 bool             `json:"show_passage"`
	ImageURL                    *string          `json:"image_url,omitempty"`
	Options                     []OptionView     `json:"options"`
	SelectedChoice              question.Option  `json:"selected_choice,omitempty"`
	Attempts                    int              `json:"attempts"`
	Answered                    bool             `json:"answered"`
	Correct                     *bool            `json:"correct,omitempty"`
	CorrectAnswer               *question.Option `json:"correct_answer,omitempty"`
	Hints                       []string         `json:"hints"`
	HintsAvailable              int              `json:"hints_available"`
	NextHintLevel               int              `json:"next_hint_level"`
	SolutionVisible             bool             `json:"solution_visible"`
	SolutionViewedBeforeAttempt bool             `json:"solution_viewed_before_attempt"`
	Solution                    *string          `json:"solution,omitempty"`
	Explanation                 *string          `json:"explanation,omitempty"`
}

// PaletteItem is one entry in the question navigator.
type PaletteItem struct {
	Index    int  `json:"index"`
	Answered bool `json:"answered"`
	Correct  bool `json:"correct"`
	Current  bool `json:"current"`
}

// Result is the outcome of a completed session.
type Result struct {
	Correct          int     `json:"correct"`
	Total            int     `json:"total"`
	ScorePercentage  float64 `json:"score_percentage"`
	ScoreDisplay     int     `json:"score_display"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
}

// buildQuestionView renders questions[idx]. prev is the question before it
// in session order, nil at index 0.
func buildQuestionView(q, prev *question.Question, rec QuestionRecord, cur cursor) *QuestionView {
	v := &QuestionView{
		ID:                          q.ID,
		TopicID:                     q.TopicID,
		Text:                        q.Text,
		Passage:                     q.Passage,
		ShowPassage:                 q.Passage != nil && *q.Passage != "" && !q.SharesPassageWith(prev),
		ImageURL:                    q.ImageURL,
		SelectedChoice:              cur.selected,
		Attempts:                    rec.Attempts,
		Answered:                    rec.Answered,
		HintsAvailable:              question.AvailableHints(q),
		SolutionVisible:             cur.solutionVisible,
		SolutionViewedBeforeAttempt: rec.SolutionViewedBeforeAttempt,
		Hints:                       []string{},
	}
	for _, o := range question.Options {
		if text, ok := q.OptionText(o); ok {
			v.Options = append(v.Options, OptionView{Letter: o, Text: text})
		}
	}
	for level := 1; level <= rec.MaxHintLevel; level++ {
		if text, ok := question.HintAt(q, level); ok {
			v.Hints = append(v.Hints, text)
		}
	}
	if !rec.Answered && rec.MaxHintLevel < v.HintsAvailable {
		v.NextHintLevel = rec.MaxHintLevel + 1
	}
	if rec.Answered {
		correct := rec.Correct
		answer := q.CorrectAnswer
		v.Correct = &correct
		v.CorrectAnswer = &answer
	}
	if cur.solutionVisible {
		v.Solution = q.Solution
		v.Explanation = q.Explanation
		if v.CorrectAnswer == nil {
			answer := q.CorrectAnswer
			v.CorrectAnswer = &answer
		}
	}
	return v
}

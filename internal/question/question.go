package question

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Option is a multiple-choice option letter.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
	OptionE Option = "E"
)

// Options lists the option letters in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD, OptionE}

// ParseOption normalizes a user-supplied letter ("b", " B ") to an Option.
func ParseOption(s string) (Option, bool) {
	o := Option(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Options {
		if o == known {
			return o, true
		}
	}
	return "", false
}

// Status is the publication state of a question.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Question is one exam content item.
type Question struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id" validate:"required"`
	TopicID   string `json:"topic_id" validate:"required"`

	Text      string  `json:"question_text" validate:"required"`
	Passage   *string `json:"passage,omitempty"`
	PassageID *string `json:"passage_id,omitempty"`
	ImageURL  *string `json:"question_image_url,omitempty"`

	OptionA string  `json:"option_a" validate:"required"`
	OptionB string  `json:"option_b" validate:"required"`
	OptionC string  `json:"option_c" validate:"required"`
	OptionD string  `json:"option_d" validate:"required"`
	OptionE *string `json:"option_e,omitempty"`

	CorrectAnswer Option `json:"correct_answer" validate:"required,oneof=A B C D E"`

	Explanation *string `json:"explanation,omitempty"`
	Hints       Hints   `json:"hints"`
	Solution    *string `json:"solution,omitempty"`

	Difficulty string `json:"difficulty,omitempty"`
	ExamType   string `json:"exam_type,omitempty"`
	ExamYear   *int   `json:"exam_year,omitempty" validate:"omitempty,min=1900,max=2100"`
	Status     Status `json:"status" validate:"omitempty,oneof=draft published archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OptionText returns the text for an option letter, or false when the
// option is absent or blank.
func (q *Question) OptionText(o Option) (string, bool) {
	var s string
	switch o {
	case OptionA:
		s = q.OptionA
	case OptionB:
		s = q.OptionB
	case OptionC:
		s = q.OptionC
	case OptionD:
		s = q.OptionD
	case OptionE:
		if q.OptionE != nil {
			s = *q.OptionE
		}
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// IsCorrect reports whether choice matches the correct answer.
func (q *Question) IsCorrect(choice Option) bool {
	return choice != "" && choice == q.CorrectAnswer
}

// SharesPassageWith reports whether q and prev reference the same
// reading passage.
func (q *Question) SharesPassageWith(prev *Question) bool {
	if prev == nil || q.PassageID == nil || prev.PassageID == nil {
		return false
	}
	return *q.PassageID != "" && *q.PassageID == *prev.PassageID
}

// ErrInvalid is returned (wrapped) by Validate.
var ErrInvalid = errors.New("invalid question")

var validate = validator.New()

// Validate checks required fields and that the correct answer references a
// non-empty option.
func (q *Question) Validate() error {
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalid, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, ok := q.OptionText(q.CorrectAnswer); !ok {
		return fmt.Errorf("%w: correct_answer %s references an empty option", ErrInvalid, q.CorrectAnswer)
	}
	return nil
}

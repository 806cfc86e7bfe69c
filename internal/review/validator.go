package review

import (
	"fmt"
	"strings"

	"github.com/sabiprep/sabiprep/internal/question"
)

// Validator checks a generated proposal. Implementations should be
// stateless and safe for concurrent use.
type Validator interface {
	// Name returns a short identifier for error messages and logging.
	Name() string

	// Validate returns nil if the proposal passes.
	Validate(p *Proposal, q *question.Question) *ValidationError
}

// ValidationError describes why a proposal failed validation.
type ValidationError struct {
	Validator string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

const (
	maxHintLen     = 600
	maxSolutionLen = 4000
)

// StructuralValidator checks presence and length limits.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(p *Proposal, _ *question.Question) *ValidationError {
	hints := []*string{p.Hint1, p.Hint2, p.Hint3}
	for i, h := range hints {
		if h == nil {
			return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("hint%d is empty", i+1)}
		}
		if len(*h) > maxHintLen {
			return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("hint%d exceeds %d characters", i+1, maxHintLen)}
		}
	}
	if *p.Hint1 == *p.Hint2 || *p.Hint2 == *p.Hint3 || *p.Hint1 == *p.Hint3 {
		return &ValidationError{Validator: v.Name(), Message: "hints must be distinct"}
	}
	if p.Solution == nil {
		return &ValidationError{Validator: v.Name(), Message: "solution is empty"}
	}
	if len(*p.Solution) > maxSolutionLen {
		return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("solution exceeds %d characters", maxSolutionLen)}
	}
	if p.Explanation == nil {
		return &ValidationError{Validator: v.Name(), Message: "explanation is empty"}
	}
	return nil
}

// LeakValidator rejects hints that quote the correct option's text.
type LeakValidator struct{}

func (v *LeakValidator) Name() string { return "answer-leak" }

// minLeakLen skips very short option texts like "2" that appear in any
// worked hint.
const minLeakLen = 4

func (v *LeakValidator) Validate(p *Proposal, q *question.Question) *ValidationError {
	answer, ok := q.OptionText(q.CorrectAnswer)
	if !ok {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(answer))
	if len(needle) < minLeakLen {
		return nil
	}
	for i, h := range []*string{p.Hint1, p.Hint2, p.Hint3} {
		if h != nil && strings.Contains(strings.ToLower(*h), needle) {
			return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("hint%d quotes the correct option", i+1)}
		}
	}
	return nil
}

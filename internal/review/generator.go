package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sabiprep/sabiprep/internal/llm"
	"github.com/sabiprep/sabiprep/internal/question"
)

// Config controls the behavior of the LLMGenerator.
type Config struct {
	// Validators run in order on every proposal; the first failure stops
	// the pipeline.
	Validators []Validator

	// MaxTokens is the token budget for the LLM response.
	MaxTokens int

	// Temperature controls LLM output randomness (0.0-1.0).
	Temperature float64
}

// DefaultConfig returns the standard validator chain and defaults.
func DefaultConfig() Config {
	return Config{
		Validators: []Validator{
			&StructuralValidator{},
			&LeakValidator{},
		},
		MaxTokens:   1500,
		Temperature: 0.4,
	}
}

// LLMGenerator implements Generator using an LLM provider.
type LLMGenerator struct {
	provider llm.Provider
	config   Config
}

// NewLLMGenerator creates an LLMGenerator.
func NewLLMGenerator(provider llm.Provider, cfg Config) *LLMGenerator {
	return &LLMGenerator{provider: provider, config: cfg}
}

// ModelID returns the provider's model.
func (g *LLMGenerator) ModelID() string { return g.provider.ModelID() }

// proposalOutput is the raw LLM response before validation.
type proposalOutput struct {
	Hint1       string `json:"hint1"`
	Hint2       string `json:"hint2"`
	Hint3       string `json:"hint3"`
	Solution    string `json:"solution"`
	Explanation string `json:"explanation"`
}

// Generate asks the model for progressive hints and a worked solution.
func (g *LLMGenerator) Generate(ctx context.Context, q *question.Question) (*Proposal, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeQuestionReview)

	req := llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(q)},
		},
		Schema:      ProposalSchema,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	var raw proposalOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	p := &Proposal{
		Hint1:       nonEmpty(raw.Hint1),
		Hint2:       nonEmpty(raw.Hint2),
		Hint3:       nonEmpty(raw.Hint3),
		Solution:    nonEmpty(raw.Solution),
		Explanation: nonEmpty(raw.Explanation),
	}

	for _, v := range g.config.Validators {
		if verr := v.Validate(p, q); verr != nil {
			return nil, verr
		}
	}
	return p, nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ProposalSchema defines the JSON schema for review generation responses.
var ProposalSchema = &llm.Schema{
	Name:        "question-review",
	Description: "Three progressive hints, a worked solution and a short explanation for one exam question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hint1": map[string]any{
				"type":        "string",
				"description": "A gentle nudge that names the concept involved without doing any working",
			},
			"hint2": map[string]any{
				"type":        "string",
				"description": "A stronger hint that sets up the first step of the working",
			},
			"hint3": map[string]any{
				"type":        "string",
				"description": "The last hint before the answer; may carry the working almost to the end but must not name the correct option",
			},
			"solution": map[string]any{
				"type":        "string",
				"description": "Step-by-step worked solution ending with the correct option letter",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "Two or three sentences on why the correct option is right and the most tempting distractor is wrong",
			},
		},
		"required":             []any{"hint1", "hint2", "hint3", "solution", "explanation"},
		"additionalProperties": false,
	},
}

const systemPrompt = `You are an experienced exam tutor preparing students for JAMB, WAEC and NECO style multiple-choice exams.

Rules:
- You are given one question with its options and the correct answer.
- Write three progressive hints. Each hint reveals a little more than the one before it.
- No hint may state the correct option letter or quote the correct option's text.
- Write a worked solution that a secondary school student can follow, step by step, and end it with the correct option letter.
- Write a short explanation of why the correct option is right and why the most tempting wrong option is wrong.
- Use plain text. Write maths in ASCII (use ^ for powers, / for fractions, sqrt() for roots).
- Do not change the question or its answer.`

// buildUserMessage describes the question to the model.
func buildUserMessage(q *question.Question) string {
	var b strings.Builder

	if q.ExamType != "" {
		fmt.Fprintf(&b, "Exam: %s", q.ExamType)
		if q.ExamYear != nil {
			fmt.Fprintf(&b, " %d", *q.ExamYear)
		}
		b.WriteString("\n")
	}
	if q.Difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", q.Difficulty)
	}
	if q.Passage != nil && *q.Passage != "" {
		fmt.Fprintf(&b, "\nPassage:\n%s\n", *q.Passage)
	}
	fmt.Fprintf(&b, "\nQuestion:\n%s\n\nOptions:\n", q.Text)
	for _, o := range question.Options {
		if text, ok := q.OptionText(o); ok {
			fmt.Fprintf(&b, "%s. %s\n", o, text)
		}
	}
	fmt.Fprintf(&b, "\nCorrect answer: %s\n", q.CorrectAnswer)

	if existing := existingHelp(q); existing != "" {
		b.WriteString("\nCurrent help text (improve on it):\n")
		b.WriteString(existing)
	}
	return strings.TrimRight(b.String(), "\n")
}

func existingHelp(q *question.Question) string {
	var b strings.Builder
	for level := 1; level <= question.MaxHintLevel; level++ {
		if text, ok := question.HintAt(q, level); ok {
			fmt.Fprintf(&b, "Hint %d: %s\n", level, text)
		}
	}
	if q.Solution != nil && *q.Solution != "" {
		fmt.Fprintf(&b, "Solution: %s\n", *q.Solution)
	}
	if q.Explanation != nil && *q.Explanation != "" {
		fmt.Fprintf(&b, "Explanation: %s\n", *q.Explanation)
	}
	return b.String()
}

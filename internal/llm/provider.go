package llm

import (
	"context"
	"encoding/json"
)

// Provider generates structured output from a prompt. Implementations wrap
// one vendor SDK; decorators add retry, timeouts and request logging.
type Provider interface {
	// Generate returns Content that conforms to req.Schema when one is set.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID names the configured model. It is recorded on reviews.
	ModelID() string
}

// Request is one prompt.
type Request struct {
	System   string
	Messages []Message

	// Schema, when set, selects the vendor's structured output mode and the
	// response is validated against it. Nil means free text.
	Schema *Schema

	MaxTokens   int
	Temperature float64 // 0 when unset
}

// Message is one turn of the prompt.
type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema. Name keys the compiled-schema cache, so
// two schemas must never share one.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// StopReason is the vendor finish reason, normalized.
type StopReason string

const (
	StopEnd       StopReason = "end"
	StopMaxTokens StopReason = "max_tokens"
)

// Response is a successful generation.
type Response struct {
	// Content is the schema-validated JSON object, or for free text the raw
	// reply.
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason StopReason
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

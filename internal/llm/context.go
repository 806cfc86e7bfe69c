package llm

import "context"

// Purpose labels why a request was made. It is stored with every logged
// request and filters `sabiprep llm list`.
type Purpose string

const (
	PurposeQuestionReview Purpose = "question-review"
	PurposeUnspecified    Purpose = "unspecified"
)

type purposeKey struct{}

// WithPurpose tags ctx so that requests made under it are logged with p.
func WithPurpose(ctx context.Context, p Purpose) context.Context {
	return context.WithValue(ctx, purposeKey{}, p)
}

// PurposeFrom returns the purpose ctx was tagged with, or
// PurposeUnspecified.
func PurposeFrom(ctx context.Context) Purpose {
	if p, ok := ctx.Value(purposeKey{}).(Purpose); ok && p != "" {
		return p
	}
	return PurposeUnspecified
}

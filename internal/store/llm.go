package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/sabiprep/sabiprep/internal/llm"
)

const llmTable = "llm_requests"

var llmColumns = []string{
	"provider", "model", "purpose", "input_tokens", "output_tokens", "latency_ms",
	"success", "error_message", "request_body", "response_body", "created_at",
}

// LLMRequest is one stored provider call.
type LLMRequest struct {
	ID int64
	llm.RequestEvent
}

// LLMUsage aggregates stored calls for one provider and model.
type LLMUsage struct {
	Provider     string
	Model        string
	Requests     int
	Failures     int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs float64
}

// AppendLLMRequest records a provider call.
func (s *Store) AppendLLMRequest(ctx context.Context, ev llm.RequestEvent) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	ins := s.sqlb().Insert(llmTable).Columns(llmColumns...).Values(
		ev.Provider, ev.Model, ev.Purpose, ev.InputTokens, ev.OutputTokens, ev.LatencyMs,
		ev.Success, ev.ErrorMessage, ev.RequestBody, ev.ResponseBody, toMillis(created),
	)
	if _, err := exec(ctx, s.db, ins); err != nil {
		return fmt.Errorf("append llm request: %w", err)
	}
	return nil
}

// ListLLMRequests returns the most recent calls, newest first. Purpose
// filters when non-empty.
func (s *Store) ListLLMRequests(ctx context.Context, purpose string, limit int) ([]LLMRequest, error) {
	b := s.sqlb()
	sel := b.Select(append([]string{"id"}, llmColumns...)...).From(b.Table(llmTable)).
		OrderBy(entsql.Desc("id"))
	if purpose != "" {
		sel.Where(entsql.EQ("purpose", purpose))
	}
	if limit > 0 {
		sel.Limit(limit)
	}
	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list llm requests: %w", err)
	}
	defer rows.Close()

	var out []LLMRequest
	for rows.Next() {
		var (
			r       LLMRequest
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &r.Purpose, &r.InputTokens, &r.OutputTokens,
			&r.LatencyMs, &r.Success, &r.ErrorMessage, &r.RequestBody, &r.ResponseBody, &created); err != nil {
			return nil, fmt.Errorf("scan llm request: %w", err)
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LLMUsageStats sums token use per provider and model.
func (s *Store) LLMUsageStats(ctx context.Context) ([]LLMUsage, error) {
	b := s.sqlb()
	sel := b.Select(
		"provider", "model",
		entsql.Count("*"),
		"SUM(CASE WHEN success THEN 0 ELSE 1 END)",
		entsql.Sum("input_tokens"),
		entsql.Sum("output_tokens"),
		entsql.Avg("latency_ms"),
	).From(b.Table(llmTable)).
		GroupBy("provider", "model").
		OrderBy("provider", "model")

	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("llm usage: %w", err)
	}
	defer rows.Close()

	var out []LLMUsage
	for rows.Next() {
		var u LLMUsage
		if err := rows.Scan(&u.Provider, &u.Model, &u.Requests, &u.Failures,
			&u.InputTokens, &u.OutputTokens, &u.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan llm usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

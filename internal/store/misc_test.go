package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/guest"
	"github.com/sabiprep/sabiprep/internal/llm"
)

func TestGuestCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx, "dev-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, "dev-1", 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err = s.Count(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = s.Increment(ctx, "dev-2", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGuestCounter_StopsAtLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		refused int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, "dev-1", 5)
			if errors.Is(err, guest.ErrLimitReached) {
				mu.Lock()
				refused++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.Count(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, refused)

	n, err = s.Increment(ctx, "dev-1", 5)
	assert.ErrorIs(t, err, guest.ErrLimitReached)
	assert.Equal(t, 5, n)
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &admin.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}
	require.NoError(t, s.UpsertUser(ctx, u))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, auth.RoleStudent, got.Role)
	assert.Equal(t, admin.UserActive, got.Status)

	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateUserRole(ctx, "u1", auth.RoleAdmin, at))
	require.NoError(t, s.UpdateUserStatus(ctx, "u1", admin.UserSuspended, at))

	// A repeated upsert keeps status.
	require.NoError(t, s.UpsertUser(ctx, &admin.User{ID: "u1", Email: "ada@example.com", Name: "Ada L", Role: auth.RoleAdmin}))
	got, err = s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada L", got.Name)
	assert.Equal(t, auth.RoleAdmin, got.Role)
	assert.Equal(t, admin.UserSuspended, got.Status)

	assert.ErrorIs(t, s.UpdateUserRole(ctx, "ghost", auth.RoleAdmin, at), ErrNotFound)
	missing, err := s.GetUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLLMRequests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	events := []llm.RequestEvent{
		{Provider: "gemini", Model: "gemini-2.0-flash", Purpose: "review", InputTokens: 100, OutputTokens: 50, LatencyMs: 200, Success: true},
		{Provider: "gemini", Model: "gemini-2.0-flash", Purpose: "review", InputTokens: 300, OutputTokens: 70, LatencyMs: 400, Success: true},
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "review", LatencyMs: 10, ErrorMessage: "rate limited"},
	}
	for _, ev := range events {
		require.NoError(t, s.AppendLLMRequest(ctx, ev))
	}

	list, err := s.ListLLMRequests(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "openai", list[0].Provider)
	assert.False(t, list[0].Success)
	assert.Greater(t, list[0].ID, list[1].ID)

	list, err = s.ListLLMRequests(ctx, "lesson", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := s.LLMUsageStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, LLMUsage{
		Provider: "gemini", Model: "gemini-2.0-flash",
		Requests: 2, InputTokens: 400, OutputTokens: 120, AvgLatencyMs: 300,
	}, stats[0])
	assert.Equal(t, 1, stats[1].Failures)
}

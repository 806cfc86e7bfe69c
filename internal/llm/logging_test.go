package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLog struct {
	mu     sync.Mutex
	events []RequestEvent
	err    error
}

func (m *memLog) AppendLLMRequest(_ context.Context, ev RequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func TestLogging_RecordsSuccessAndFailure(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"hint1":"a"}`), Usage: Usage{InputTokens: 12, OutputTokens: 7}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	log := &memLog{}
	p := WithLogging(mock, ProviderMock, log, nil)
	ctx := WithPurpose(context.Background(), PurposeQuestionReview)

	req := Request{System: "sys", Messages: []Message{{Role: RoleUser, Content: "q"}}, Schema: reviewSchema()}
	_, err := p.Generate(ctx, req)
	require.NoError(t, err)
	_, err = p.Generate(ctx, req)
	require.Error(t, err)

	require.Len(t, log.events, 2)
	ok := log.events[0]
	assert.Equal(t, ProviderMock, ok.Provider)
	assert.Equal(t, "mock", ok.Model)
	assert.Equal(t, "question-review", ok.Purpose)
	assert.True(t, ok.Success)
	assert.Equal(t, 12, ok.InputTokens)
	assert.Equal(t, 7, ok.OutputTokens)
	assert.Equal(t, `{"hint1":"a"}`, ok.ResponseBody)
	assert.Contains(t, ok.RequestBody, "[system]\nsys")
	assert.Contains(t, ok.RequestBody, "[schema: review-test]")
	assert.False(t, ok.CreatedAt.IsZero())

	failed := log.events[1]
	assert.False(t, failed.Success)
	assert.Contains(t, failed.ErrorMessage, "down")
}

func TestLogging_AppendFailureDoesNotFailCall(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mock := NewMockProvider(MockResponse{Content: okContent})
	p := WithLogging(mock, ProviderMock, &memLog{err: errors.New("disk full")}, logger)

	resp, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Contains(t, buf.String(), "llm request log append failed")
	assert.Contains(t, buf.String(), "disk full")
}

func TestPurposeFrom(t *testing.T) {
	assert.Equal(t, PurposeUnspecified, PurposeFrom(context.Background()))
	assert.Equal(t, PurposeUnspecified, PurposeFrom(WithPurpose(context.Background(), "")))
	assert.Equal(t, PurposeQuestionReview, PurposeFrom(WithPurpose(context.Background(), PurposeQuestionReview)))
}

func TestMockProvider(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: okContent})
	_, err := mock.Generate(context.Background(), Request{System: "one"})
	require.NoError(t, err)

	_, err = mock.Generate(context.Background(), Request{System: "two"})
	var un *ErrProviderUnavailable
	assert.ErrorAs(t, err, &un)

	mock.AddResponse(MockResponse{Err: errors.New("canned")})
	_, err = mock.Generate(context.Background(), Request{})
	assert.EqualError(t, err, "canned")

	assert.Equal(t, 3, mock.CallCount())
	assert.Equal(t, "two", mock.Calls[1].System)
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiprep/sabiprep/internal/question"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strp(s string) *string { return &s }

func seedQuestion(t *testing.T, s *Store, mut func(q *question.Question)) *question.Question {
	t.Helper()
	q := &question.Question{
		SubjectID:     "chem",
		TopicID:       "acids",
		Text:          "Which gas turns lime water milky?",
		OptionA:       "Oxygen",
		OptionB:       "Carbon dioxide",
		OptionC:       "Hydrogen",
		OptionD:       "Nitrogen",
		CorrectAnswer: question.OptionB,
		Status:        question.StatusPublished,
	}
	if mut != nil {
		mut(q)
	}
	require.NoError(t, s.CreateQuestion(context.Background(), q))
	return q
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate(context.Background()))
	assert.Equal(t, DriverSQLite, s.Driver())
}

func TestMillisRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("WAT", 3600))
	assert.True(t, fromMillis(toMillis(at)).Equal(at))
	assert.Nil(t, nullMillis(nil))
	assert.Nil(t, timePtr(sql.NullInt64{}))
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/sabiprep/sabiprep/internal/goals"
)

const goalsTable = "user_goals"

var goalColumns = []string{
	"user_id", "current_streak", "longest_streak", "last_active_date",
	"daily_date", "daily_answered", "daily_target", "updated_at",
}

func (s *Store) getGoals(ctx context.Context, c conn, userID string) (*goals.Summary, error) {
	b := s.sqlb()
	sel := b.Select(goalColumns[:len(goalColumns)-1]...).From(b.Table(goalsTable)).Where(entsql.EQ("user_id", userID))

	var sum goals.Summary
	err := queryRow(ctx, c, sel).Scan(&sum.UserID, &sum.Streak.Current, &sum.Streak.Longest, &sum.Streak.LastActiveDate,
		&sum.Daily.Date, &sum.Daily.QuestionsAnswered, &sum.Daily.Target)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goals %s: %w", userID, err)
	}
	sum.Daily.Met = sum.Daily.Target > 0 && sum.Daily.QuestionsAnswered >= sum.Daily.Target
	sum.NextMilestone = goals.NextMilestone(sum.Streak.Current)
	return &sum, nil
}

func (s *Store) putGoals(ctx context.Context, c conn, sum goals.Summary) error {
	ins := s.sqlb().Insert(goalsTable).Columns(goalColumns...).Values(
		sum.UserID, sum.Streak.Current, sum.Streak.Longest, sum.Streak.LastActiveDate,
		sum.Daily.Date, sum.Daily.QuestionsAnswered, sum.Daily.Target, toMillis(s.now()),
	).OnConflict(
		entsql.ConflictColumns("user_id"),
		entsql.ResolveWithNewValues(),
	)
	if _, err := exec(ctx, c, ins); err != nil {
		return fmt.Errorf("put goals %s: %w", sum.UserID, err)
	}
	return nil
}

// GetGoals returns nil, nil for a user who has never completed a session.
func (s *Store) GetGoals(ctx context.Context, userID string) (*goals.Summary, error) {
	return s.getGoals(ctx, s.db, userID)
}

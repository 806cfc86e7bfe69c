// Package goals tracks study streaks and daily question goals. Both are
// recalculated when a learner completes a session.
package goals

import (
	"context"
	"time"
)

// DefaultDailyTarget is the daily question goal when none is configured.
const DefaultDailyTarget = 20

// dayLayout keys streak and daily progress by calendar day in UTC.
const dayLayout = "2006-01-02"

// Streak is a learner's run of consecutive study days.
type Streak struct {
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	LastActiveDate string `json:"last_active_date,omitempty"`
}

// Daily is progress against the daily question goal.
type Daily struct {
	Date              string `json:"date"`
	QuestionsAnswered int    `json:"questions_answered"`
	Target            int    `json:"target"`
	Met               bool   `json:"met"`
}

// Summary is the goal state for one user.
type Summary struct {
	UserID        string `json:"user_id"`
	Streak        Streak `json:"streak"`
	Daily         Daily  `json:"daily"`
	NextMilestone int    `json:"next_milestone"`
}

// Repo reads goal state. GetGoals returns nil, nil for a user with no
// completed sessions.
type Repo interface {
	GetGoals(ctx context.Context, userID string) (*Summary, error)
}

// Day returns the calendar-day key for t.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Advance returns the streak after activity on day. A same-day completion
// keeps the streak, the next day extends it, and any gap resets it to 1.
func Advance(s Streak, day time.Time) Streak {
	today := Day(day)
	switch {
	case s.LastActiveDate == today:
		if s.Current == 0 {
			s.Current = 1
		}
	case s.LastActiveDate == Day(day.AddDate(0, 0, -1)):
		s.Current++
	default:
		s.Current = 1
	}
	s.LastActiveDate = today
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	return s
}

// AddAnswers adds answered questions to the daily progress for day,
// starting a fresh count when the day has rolled over.
func AddAnswers(d Daily, day time.Time, answered, target int) Daily {
	if target <= 0 {
		target = DefaultDailyTarget
	}
	today := Day(day)
	if d.Date != today {
		d = Daily{Date: today}
	}
	d.QuestionsAnswered += answered
	d.Target = target
	d.Met = d.QuestionsAnswered >= d.Target
	return d
}

// Apply folds one completed session into the summary.
func Apply(s Summary, completedAt time.Time, answered, target int) Summary {
	s.Streak = Advance(s.Streak, completedAt)
	s.Daily = AddAnswers(s.Daily, completedAt, answered, target)
	s.NextMilestone = NextMilestone(s.Streak.Current)
	return s
}

// AsOf returns the summary as it should read on day: a streak whose last
// day is before yesterday has lapsed, and yesterday's daily count is stale.
func (s Summary) AsOf(day time.Time, target int) Summary {
	if target <= 0 {
		target = DefaultDailyTarget
	}
	today, yesterday := Day(day), Day(day.AddDate(0, 0, -1))
	if s.Streak.LastActiveDate != today && s.Streak.LastActiveDate != yesterday {
		s.Streak.Current = 0
	}
	if s.Daily.Date != today {
		s.Daily = Daily{Date: today}
	}
	s.Daily.Target = target
	s.Daily.Met = s.Daily.QuestionsAnswered >= target
	s.NextMilestone = NextMilestone(s.Streak.Current)
	return s
}

// NextMilestone returns the next streak milestone above current.
func NextMilestone(current int) int {
	milestones := []int{3, 7, 14, 30}
	for _, m := range milestones {
		if m > current {
			return m
		}
	}
	// Beyond 30 days, every 30.
	return ((current / 30) + 1) * 30
}

// Service serves goal summaries.
type Service struct {
	repo   Repo
	target int
	now    func() time.Time
}

// NewService returns a goals service with the configured daily target.
func NewService(repo Repo, target int) *Service {
	if target <= 0 {
		target = DefaultDailyTarget
	}
	return &Service{repo: repo, target: target, now: time.Now}
}

// Target returns the daily question goal.
func (s *Service) Target() int { return s.target }

// Get returns the user's summary as of today.
func (s *Service) Get(ctx context.Context, userID string) (Summary, error) {
	sum, err := s.repo.GetGoals(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if sum == nil {
		sum = &Summary{UserID: userID}
	}
	return sum.AsOf(s.now(), s.target), nil
}

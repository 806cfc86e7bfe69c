package store

import (
	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/goals"
	"github.com/sabiprep/sabiprep/internal/guest"
	"github.com/sabiprep/sabiprep/internal/review"
	"github.com/sabiprep/sabiprep/internal/session"
)

var (
	_ session.Store      = (*Store)(nil)
	_ review.Repo        = (*Store)(nil)
	_ admin.QuestionRepo = (*Store)(nil)
	_ admin.UserRepo     = (*Store)(nil)
	_ audit.Repo         = (*Store)(nil)
	_ goals.Repo         = (*Store)(nil)
	_ guest.Counter      = (*Store)(nil)
)

// Package audit records administrative actions in an append-only log.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of administrative action being recorded.
type Action string

const (
	ActionCreate         Action = "CREATE"
	ActionUpdate         Action = "UPDATE"
	ActionDelete         Action = "DELETE"
	ActionBulkPublish    Action = "BULK_PUBLISH"
	ActionBulkArchive    Action = "BULK_ARCHIVE"
	ActionBulkDelete     Action = "BULK_DELETE"
	ActionImportStart    Action = "IMPORT_START"
	ActionImportComplete Action = "IMPORT_COMPLETE"
	ActionImportFailed   Action = "IMPORT_FAILED"
	ActionRoleChange     Action = "ROLE_CHANGE"
	ActionStatusChange   Action = "STATUS_CHANGE"
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete,
		ActionBulkPublish, ActionBulkArchive, ActionBulkDelete,
		ActionImportStart, ActionImportComplete, ActionImportFailed,
		ActionRoleChange, ActionStatusChange, ActionLogin, ActionLogout:
		return true
	}
	return false
}

// EntityType is the kind of record an action targets.
type EntityType string

const (
	EntityUser     EntityType = "user"
	EntityQuestion EntityType = "question"
	EntitySubject  EntityType = "subject"
	EntityTopic    EntityType = "topic"
	EntityImport   EntityType = "import"
)

// Entry is one audit log row. Entries are never mutated once appended.
type Entry struct {
	ID         string         `json:"id"`
	AdminID    string         `json:"admin_id"`
	Action     Action         `json:"action"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows an audit log listing. Zero values mean "any".
type Filter struct {
	AdminID    string
	Action     Action
	EntityType EntityType
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// Repo persists audit entries.
type Repo interface {
	AppendAudit(ctx context.Context, e *Entry) error
	ListAudit(ctx context.Context, f Filter) ([]Entry, int, error)
}

// Recorder stamps and appends audit entries.
type Recorder struct {
	repo   Repo
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repo, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger, now: time.Now}
}

// Stamp fills in ID, timestamp and request metadata without persisting.
// Callers that append inside their own transaction use this.
func (r *Recorder) Stamp(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if m, ok := metaFrom(ctx); ok {
		if e.IPAddress == "" {
			e.IPAddress = m.ip
		}
		if e.UserAgent == "" {
			e.UserAgent = m.userAgent
		}
	}
	return e
}

// Record appends e to the log.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("audit: unknown action %q", e.Action)
	}
	e = r.Stamp(ctx, e)
	if err := r.repo.AppendAudit(ctx, &e); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	r.logger.Info("audit",
		"action", e.Action,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"admin_id", e.AdminID,
	)
	return nil
}

// List returns matching entries newest first plus the total match count.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return r.repo.ListAudit(ctx, f)
}

type ctxKey string

const metaKey ctxKey = "audit_request_meta"

type requestMeta struct {
	ip        string
	userAgent string
}

// WithRequestMeta attaches the caller's IP and user agent for later entries.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, metaKey, requestMeta{ip: ip, userAgent: userAgent})
}

func metaFrom(ctx context.Context) (requestMeta, bool) {
	m, ok := ctx.Value(metaKey).(requestMeta)
	return m, ok
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/sabiprep/sabiprep/internal/audit"
)

const auditTable = "admin_audit_logs"

var auditColumns = []string{
	"id", "admin_id", "action", "entity_type", "entity_id", "details", "ip_address", "user_agent", "created_at",
}

func (s *Store) appendAudit(ctx context.Context, c conn, e *audit.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(b)
	}
	ins := s.sqlb().Insert(auditTable).Columns(auditColumns...).Values(
		e.ID, e.AdminID, string(e.Action), string(e.EntityType), e.EntityID, details,
		e.IPAddress, e.UserAgent, toMillis(e.CreatedAt),
	)
	if _, err := exec(ctx, c, ins); err != nil {
		return fmt.Errorf("append audit %s: %w", e.Action, err)
	}
	return nil
}

// AppendAudit inserts a log entry.
func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	return s.appendAudit(ctx, s.db, e)
}

func auditPredicate(f audit.Filter) *entsql.Predicate {
	var preds []*entsql.Predicate
	if f.AdminID != "" {
		preds = append(preds, entsql.EQ("admin_id", f.AdminID))
	}
	if f.Action != "" {
		preds = append(preds, entsql.EQ("action", string(f.Action)))
	}
	if f.EntityType != "" {
		preds = append(preds, entsql.EQ("entity_type", string(f.EntityType)))
	}
	if !f.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", toMillis(f.From)))
	}
	if !f.To.IsZero() {
		preds = append(preds, entsql.LT("created_at", toMillis(f.To)))
	}
	if len(preds) == 0 {
		return nil
	}
	return entsql.And(preds...)
}

// ListAudit returns matching entries newest first, plus the match count.
func (s *Store) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	b := s.sqlb()
	pred := auditPredicate(f)

	count := b.Select(entsql.Count("*")).From(b.Table(auditTable))
	if pred != nil {
		count.Where(pred)
	}
	var total int
	if err := queryRow(ctx, s.db, count).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit: %w", err)
	}

	sel := b.Select(auditColumns...).From(b.Table(auditTable)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if pred != nil {
		sel.Where(pred)
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit).Offset(max(f.Offset, 0))
	}

	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e              audit.Entry
			action, entity string
			details        sql.NullString
			created        int64
		)
		if err := rows.Scan(&e.ID, &e.AdminID, &action, &entity, &e.EntityID, &details,
			&e.IPAddress, &e.UserAgent, &created); err != nil {
			return nil, 0, fmt.Errorf("scan audit: %w", err)
		}
		e.Action, e.EntityType = audit.Action(action), audit.EntityType(entity)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decode audit details: %w", err)
			}
		}
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, total, rows.Err()
}

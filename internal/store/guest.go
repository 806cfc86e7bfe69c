package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/sabiprep/sabiprep/internal/guest"
)

const guestTable = "guest_counters"

// Count returns how many questions the device has answered as a guest.
func (s *Store) Count(ctx context.Context, deviceID string) (int, error) {
	return s.guestCount(ctx, s.db, deviceID)
}

func (s *Store) guestCount(ctx context.Context, c conn, deviceID string) (int, error) {
	b := s.sqlb()
	sel := b.Select("answered_count").From(b.Table(guestTable)).Where(entsql.EQ("device_id", deviceID))
	var n int
	err := queryRow(ctx, c, sel).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("guest count %s: %w", deviceID, err)
	}
	return n, nil
}

// Increment adds one answered question for the device and returns the new
// count. The upsert is a single statement so concurrent callers never lose
// an increment, and its WHERE clause keeps the count from passing limit. A
// non-positive limit means no cap.
func (s *Store) Increment(ctx context.Context, deviceID string, limit int) (int, error) {
	var n int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		opts := []entsql.ConflictOption{
			entsql.ConflictColumns("device_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Add("answered_count", 1)
				u.SetExcluded("updated_at")
			}),
		}
		if limit > 0 {
			opts = append(opts, entsql.UpdateWhere(entsql.P(func(b *entsql.Builder) {
				b.Ident(guestTable).WriteByte('.').Ident("answered_count").WriteString(" < ").Arg(limit)
			})))
		}
		ins := s.sqlb().Insert(guestTable).Columns("device_id", "answered_count", "updated_at").
			Values(deviceID, 1, toMillis(s.now())).
			OnConflict(opts...)
		res, err := exec(ctx, tx, ins)
		if err != nil {
			return fmt.Errorf("guest increment %s: %w", deviceID, err)
		}
		changed, err := affected(res)
		if err != nil {
			return fmt.Errorf("guest increment %s: %w", deviceID, err)
		}
		if n, err = s.guestCount(ctx, tx, deviceID); err != nil {
			return err
		}
		if changed == 0 {
			return guest.ErrLimitReached
		}
		return nil
	})
	return n, err
}

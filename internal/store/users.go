package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/auth"
)

const usersTable = "users"

var userColumns = []string{"id", "email", "name", "role", "status", "created_at", "updated_at"}

func (s *Store) getUser(ctx context.Context, pred *entsql.Predicate) (*admin.User, error) {
	b := s.sqlb()
	sel := b.Select(userColumns...).From(b.Table(usersTable)).Where(pred)

	var (
		u                admin.User
		role, status     string
		created, updated int64
	)
	err := queryRow(ctx, s.db, sel).Scan(&u.ID, &u.Email, &u.Name, &role, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role, u.Status = auth.Role(role), admin.UserStatus(status)
	u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &u, nil
}

// GetUser returns nil, nil when the user does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*admin.User, error) {
	u, err := s.getUser(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail returns nil, nil when no user has the address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*admin.User, error) {
	u, err := s.getUser(ctx, entsql.EQ("email", email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpsertUser inserts u or refreshes the email, name and role of an existing
// row with the same id. Status and created_at are kept on conflict.
func (s *Store) UpsertUser(ctx context.Context, u *admin.User) error {
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = auth.RoleStudent
	}
	if u.Status == "" {
		u.Status = admin.UserActive
	}
	ins := s.sqlb().Insert(usersTable).Columns(userColumns...).Values(
		u.ID, u.Email, u.Name, string(u.Role), string(u.Status), toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	).OnConflict(
		entsql.ConflictColumns("id"),
		entsql.ResolveWith(func(set *entsql.UpdateSet) {
			set.SetExcluded("email").SetExcluded("name").SetExcluded("role").SetExcluded("updated_at")
		}),
	)
	if _, err := exec(ctx, s.db, ins); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *Store) setUserField(ctx context.Context, id, col, value string, at time.Time) error {
	upd := s.sqlb().Update(usersTable).
		Set(col, value).
		Set("updated_at", toMillis(at)).
		Where(entsql.EQ("id", id))
	res, err := exec(ctx, s.db, upd)
	if err != nil {
		return fmt.Errorf("update user %s %s: %w", id, col, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role auth.Role, at time.Time) error {
	return s.setUserField(ctx, id, "role", string(role), at)
}

func (s *Store) UpdateUserStatus(ctx context.Context, id string, status admin.UserStatus, at time.Time) error {
	return s.setUserField(ctx, id, "status", string(status), at)
}

package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
)

// Users changes account roles and status.
type Users struct {
	repo  UserRepo
	audit *audit.Recorder
	now   func() time.Time
}

// NewUsers returns the user administration service.
func NewUsers(repo UserRepo, rec *audit.Recorder) *Users {
	return &Users{repo: repo, audit: rec, now: time.Now}
}

// Get returns the user or ErrNotFound.
func (s *Users) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// ChangeRole sets the user's role. Admins cannot change their own role.
func (s *Users) ChangeRole(ctx context.Context, adminID, userID string, role auth.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}
	if adminID == userID {
		return nil, fmt.Errorf("%w: cannot change your own role", ErrInvalidRequest)
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role == role {
		return u, nil
	}

	prev := u.Role
	at := s.now().UTC()
	if err := s.repo.UpdateUserRole(ctx, userID, role, at); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	u.Role, u.UpdatedAt = role, at

	err = s.audit.Record(ctx, audit.Entry{
		AdminID:    adminID,
		Action:     audit.ActionRoleChange,
		EntityType: audit.EntityUser,
		EntityID:   userID,
		Details:    map[string]any{"previous_role": string(prev), "new_role": string(role)},
	})
	if err != nil {
		return nil, fmt.Errorf("audit role change: %w", err)
	}
	return u, nil
}

// ChangeStatus suspends or reactivates the user. Admins cannot suspend
// themselves.
func (s *Users) ChangeStatus(ctx context.Context, adminID, userID string, status UserStatus) (*User, error) {
	if status != UserActive && status != UserSuspended {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	if adminID == userID && status == UserSuspended {
		return nil, fmt.Errorf("%w: cannot suspend yourself", ErrInvalidRequest)
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Status == status {
		return u, nil
	}

	prev := u.Status
	at := s.now().UTC()
	if err := s.repo.UpdateUserStatus(ctx, userID, status, at); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	u.Status, u.UpdatedAt = status, at

	err = s.audit.Record(ctx, audit.Entry{
		AdminID:    adminID,
		Action:     audit.ActionStatusChange,
		EntityType: audit.EntityUser,
		EntityID:   userID,
		Details:    map[string]any{"previous_status": string(prev), "new_status": string(status)},
	})
	if err != nil {
		return nil, fmt.Errorf("audit status change: %w", err)
	}
	return u, nil
}

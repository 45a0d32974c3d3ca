package services

import (
	"context"
	"fmt"
	"time"
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpsertUser(ctx context.Context, u *User) error
	AddAudit(ctx context.Context, entry AuditEntry) error
}

type UserService struct {
	store UserStore
	now   func() time.Time
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *UserService) List(ctx context.Context, actor Actor) ([]*User, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	return s.store.ListUsers(ctx)
}

// ChangeRole sets the role of userID. Only admins may do this and an admin
// cannot demote themselves.
func (s *UserService) ChangeRole(ctx context.Context, actor Actor, userID string, role Role) (*User, error) {
	if actor.Role != RoleAdmin || actor.UserID == "" {
		return nil, NewForbiddenError("forbidden")
	}
	if !role.Valid() {
		return nil, NewInvalidError("invalid role")
	}
	if userID == actor.UserID && role != RoleAdmin {
		return nil, NewConflictError("cannot demote yourself")
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if u.Role == role {
		return u, nil
	}
	prev := u.Role
	u.Role = role
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}
	_ = s.store.AddAudit(ctx, AuditEntry{
		Time:   s.now(),
		Actor:  actor.UserID,
		Action: "user.role",
		Target: u.ID,
		Note:   string(prev) + "->" + string(role),
	})
	return u, nil
}

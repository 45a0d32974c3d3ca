package services

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GroupStore applies membership and assignment edits atomically. Each edit
// returns the group as stored afterwards, or nil when it does not exist,
// and whether the set changed.
type GroupStore interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	AddGroupMember(ctx context.Context, groupID, userID string) (*Group, bool, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) (*Group, bool, error)
	AssignGroupSurvey(ctx context.Context, groupID, surveyID string) (*Group, bool, error)
	UnassignGroupSurvey(ctx context.Context, groupID, surveyID string) (*Group, bool, error)
	GetSurvey(ctx context.Context, id string) (*Survey, error)
	GetUser(ctx context.Context, id string) (*User, error)
	AddAudit(ctx context.Context, entry AuditEntry) error
}

// GroupService manages group membership and survey assignment. Assignment
// is recorded on both sides: the group's AssignedSurveys and the survey's
// AssignedGroups. The group side is what eligibility reads.
type GroupService struct {
	store GroupStore
	now   func() time.Time
}

func NewGroupService(store GroupStore) *GroupService {
	return &GroupService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *GroupService) List(ctx context.Context) ([]*Group, error) {
	return s.store.ListGroups(ctx)
}

func (s *GroupService) Create(ctx context.Context, actor Actor, name, description string) (*Group, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	g := &Group{
		ID:              shortID(12),
		Name:            name,
		Description:     description,
		Members:         []string{},
		AssignedSurveys: []string{},
		CreatedAt:       s.now(),
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.audit(ctx, actor, "group.create", g.ID, g.Name)
	return g, nil
}

func (s *GroupService) AddMember(ctx context.Context, actor Actor, groupID, userID string) (*Group, error) {
	if err := s.managed(ctx, actor, groupID); err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	g, added, err := s.edited(s.store.AddGroupMember(ctx, groupID, userID))
	if err != nil {
		return nil, err
	}
	if added {
		s.audit(ctx, actor, "group.member.add", g.ID, userID)
	}
	return g, nil
}

func (s *GroupService) RemoveMember(ctx context.Context, actor Actor, groupID, userID string) (*Group, error) {
	if err := s.managed(ctx, actor, groupID); err != nil {
		return nil, err
	}
	g, removed, err := s.edited(s.store.RemoveGroupMember(ctx, groupID, userID))
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, NewNotFoundError("member not found")
	}
	s.audit(ctx, actor, "group.member.remove", g.ID, userID)
	return g, nil
}

func (s *GroupService) AssignSurvey(ctx context.Context, actor Actor, groupID, surveyID string) (*Group, error) {
	if err := s.managed(ctx, actor, groupID); err != nil {
		return nil, err
	}
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, ErrSurveyNotFound
	}
	g, added, err := s.edited(s.store.AssignGroupSurvey(ctx, groupID, surveyID))
	if err != nil {
		return nil, err
	}
	if added {
		s.audit(ctx, actor, "group.survey.assign", g.ID, surveyID)
	}
	return g, nil
}

// UnassignSurvey works even when the survey itself is gone.
func (s *GroupService) UnassignSurvey(ctx context.Context, actor Actor, groupID, surveyID string) (*Group, error) {
	if err := s.managed(ctx, actor, groupID); err != nil {
		return nil, err
	}
	g, removed, err := s.edited(s.store.UnassignGroupSurvey(ctx, groupID, surveyID))
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, NewNotFoundError("survey not assigned to group")
	}
	s.audit(ctx, actor, "group.survey.unassign", g.ID, surveyID)
	return g, nil
}

func (s *GroupService) managed(ctx context.Context, actor Actor, groupID string) error {
	if !actor.CanManage() {
		return NewForbiddenError("forbidden")
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return ErrGroupNotFound
	}
	return nil
}

// edited maps the result of a store edit; a nil group means it was deleted
// after the existence check.
func (s *GroupService) edited(g *Group, changed bool, err error) (*Group, bool, error) {
	if err != nil {
		return nil, false, fmt.Errorf("update group: %w", err)
	}
	if g == nil {
		return nil, false, ErrGroupNotFound
	}
	return g, changed, nil
}

func (s *GroupService) audit(ctx context.Context, actor Actor, action, target, note string) {
	_ = s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: actor.UserID, Action: action, Target: target, Note: note})
}

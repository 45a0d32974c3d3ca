package services

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *Template) error
	UpdateTemplate(ctx context.Context, t *Template) (bool, error)
	DeleteTemplate(ctx context.Context, id string) (bool, error)
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
	CreateSurvey(ctx context.Context, sv *Survey) error
	AddAudit(ctx context.Context, entry AuditEntry) error
}

// TemplateService manages survey templates. Questions go through the same
// normalization as survey questions so a template always yields a valid
// survey.
type TemplateService struct {
	store TemplateStore
	now   func() time.Time
}

func NewTemplateService(store TemplateStore) *TemplateService {
	return &TemplateService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type TemplateInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Questions   []Question `json:"questions"`
}

func (s *TemplateService) List(ctx context.Context, actor Actor) ([]*Template, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	return s.store.ListTemplates(ctx)
}

func (s *TemplateService) Get(ctx context.Context, actor Actor, id string) (*Template, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTemplateNotFound
	}
	return t, nil
}

func (s *TemplateService) Create(ctx context.Context, actor Actor, in TemplateInput) (*Template, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	now := s.now()
	t := &Template{
		ID:        shortID(12),
		CreatorID: actor.UserID,
		Questions: []Question{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyTemplateInput(t, in); err != nil {
		return nil, err
	}
	if t.Name == "" {
		return nil, NewInvalidError("name required")
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	s.audit(ctx, actor, "template.create", t.ID, t.Name)
	return t, nil
}

func (s *TemplateService) Update(ctx context.Context, actor Actor, id string, in TemplateInput) (*Template, error) {
	t, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := applyTemplateInput(t, in); err != nil {
		return nil, err
	}
	if t.Name == "" {
		return nil, NewInvalidError("name required")
	}
	t.UpdatedAt = s.now()
	ok, err := s.store.UpdateTemplate(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	if !ok {
		return nil, ErrTemplateNotFound
	}
	s.audit(ctx, actor, "template.update", t.ID, t.Name)
	return t, nil
}

func (s *TemplateService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	ok, err := s.store.DeleteTemplate(ctx, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if !ok {
		return ErrTemplateNotFound
	}
	s.audit(ctx, actor, "template.delete", id, "")
	return nil
}

// Instantiate creates a draft survey owned by actor with a copy of the
// template's questions. An empty title falls back to the template name.
func (s *TemplateService) Instantiate(ctx context.Context, actor Actor, id, title string) (*Survey, error) {
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = t.Name
	}
	now := s.now()
	sv := &Survey{
		ID:             shortID(12),
		Title:          title,
		Description:    t.Description,
		CreatorID:      actor.UserID,
		Status:         StatusDraft,
		Questions:      cloneQuestions(t.Questions),
		AssignedGroups: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateSurvey(ctx, sv); err != nil {
		return nil, fmt.Errorf("create survey from template: %w", err)
	}
	s.audit(ctx, actor, "template.instantiate", t.ID, sv.ID)
	return sv, nil
}

func (s *TemplateService) owned(ctx context.Context, actor Actor, id string) (*Template, error) {
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && t.CreatorID != actor.UserID {
		return nil, NewForbiddenError("forbidden")
	}
	return t, nil
}

func (s *TemplateService) audit(ctx context.Context, actor Actor, action, target, note string) {
	_ = s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: actor.UserID, Action: action, Target: target, Note: note})
}

func applyTemplateInput(t *Template, in TemplateInput) error {
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Questions != nil {
		qs, err := normalizeQuestions(in.Questions)
		if err != nil {
			return err
		}
		t.Questions = qs
	}
	return nil
}

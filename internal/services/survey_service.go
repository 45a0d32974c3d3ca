package services

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Actor identifies the caller of a mutating operation.
type Actor struct {
	UserID string
	Role   Role
}

// CanManage reports whether the actor may author surveys and groups.
func (a Actor) CanManage() bool {
	return a.UserID != "" && (a.Role == RoleAdmin || a.Role == RoleCreator)
}

type SurveyStore interface {
	CreateSurvey(ctx context.Context, sv *Survey) error
	UpdateSurvey(ctx context.Context, sv *Survey) (bool, error)
	DeleteSurvey(ctx context.Context, id string) (bool, error)
	GetSurvey(ctx context.Context, id string) (*Survey, error)
	ListSurveys(ctx context.Context) ([]*Survey, error)
	AddAudit(ctx context.Context, entry AuditEntry) error
}

type SurveyService struct {
	store SurveyStore
	now   func() time.Time
}

func NewSurveyService(store SurveyStore) *SurveyService {
	return &SurveyService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type SurveyInput struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Status      *SurveyStatus `json:"status"`
	Questions   []Question    `json:"questions"`
}

func (s *SurveyService) List(ctx context.Context) ([]*Survey, error) {
	return s.store.ListSurveys(ctx)
}

func (s *SurveyService) Get(ctx context.Context, id string) (*Survey, error) {
	sv, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, ErrSurveyNotFound
	}
	return sv, nil
}

func (s *SurveyService) Create(ctx context.Context, actor Actor, in SurveyInput) (*Survey, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	now := s.now()
	sv := &Survey{
		ID:             shortID(12),
		CreatorID:      actor.UserID,
		Status:         StatusDraft,
		AssignedGroups: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := applySurveyInput(sv, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sv.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	if err := s.store.CreateSurvey(ctx, sv); err != nil {
		return nil, fmt.Errorf("create survey: %w", err)
	}
	s.audit(ctx, actor, "survey.create", sv.ID, sv.Title)
	return sv, nil
}

func (s *SurveyService) Update(ctx context.Context, actor Actor, id string, in SurveyInput) (*Survey, error) {
	sv, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := applySurveyInput(sv, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sv.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	sv.UpdatedAt = s.now()
	ok, err := s.store.UpdateSurvey(ctx, sv)
	if err != nil {
		return nil, fmt.Errorf("update survey: %w", err)
	}
	if !ok {
		return nil, ErrSurveyNotFound
	}
	s.audit(ctx, actor, "survey.update", sv.ID, string(sv.Status))
	return sv, nil
}

func (s *SurveyService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	ok, err := s.store.DeleteSurvey(ctx, id)
	if err != nil {
		return fmt.Errorf("delete survey: %w", err)
	}
	if !ok {
		return ErrSurveyNotFound
	}
	s.audit(ctx, actor, "survey.delete", id, "")
	return nil
}

func (s *SurveyService) owned(ctx context.Context, actor Actor, id string) (*Survey, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	sv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && sv.CreatorID != actor.UserID {
		return nil, NewForbiddenError("forbidden")
	}
	return sv, nil
}

func (s *SurveyService) audit(ctx context.Context, actor Actor, action, target, note string) {
	_ = s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: actor.UserID, Action: action, Target: target, Note: note})
}

func applySurveyInput(sv *Survey, in SurveyInput) error {
	if in.Title != nil {
		sv.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		sv.Description = *in.Description
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return NewInvalidError("invalid status")
		}
		sv.Status = *in.Status
	}
	if in.Questions != nil {
		qs, err := normalizeQuestions(in.Questions)
		if err != nil {
			return err
		}
		sv.Questions = qs
	}
	return nil
}

func normalizeQuestions(in []Question) ([]Question, error) {
	out := make([]Question, 0, len(in))
	seen := map[string]struct{}{}
	for i, q := range in {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			return nil, NewInvalidError(fmt.Sprintf("question %d: text required", i+1))
		}
		if !q.Type.Valid() {
			return nil, NewInvalidError(fmt.Sprintf("question %d: invalid type", i+1))
		}
		if q.ID == "" {
			q.ID = shortID(8)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, NewInvalidError(fmt.Sprintf("question %d: duplicate id %q", i+1, q.ID))
		}
		seen[q.ID] = struct{}{}
		switch q.Type {
		case QuestionMultipleChoice:
			if len(q.Options) == 0 {
				return nil, NewInvalidError(fmt.Sprintf("question %d: options required", i+1))
			}
			q.Min, q.Max = nil, nil
		case QuestionRatingScale:
			if q.Min == nil || q.Max == nil || *q.Min >= *q.Max {
				return nil, NewInvalidError(fmt.Sprintf("question %d: min must be below max", i+1))
			}
			q.Options = nil
		default:
			q.Options, q.Min, q.Max = nil, nil, nil
		}
		out = append(out, q)
	}
	return out, nil
}

package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/soaringjerry/surveydesk/internal/services"
)

// MemoryStore keeps everything in process memory. Records are copied on
// the way in and out so callers never share state with the store. Lists
// come back in insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	surveys     map[string]*services.Survey
	surveyOrder []string
	groups      map[string]*services.Group
	groupOrder  []string
	users       map[string]*services.User
	userOrder   []string
	templates   map[string]*services.Template
	tplOrder    []string
	responses   []*services.Response
	audit       []services.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		surveys:   map[string]*services.Survey{},
		groups:    map[string]*services.Group{},
		users:     map[string]*services.User{},
		templates: map[string]*services.Template{},
		responses: []*services.Response{},
		audit:     []services.AuditEntry{},
	}
}

func (s *MemoryStore) CreateSurvey(_ context.Context, sv *services.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surveys[sv.ID]; ok {
		return fmt.Errorf("survey %s already exists", sv.ID)
	}
	s.surveys[sv.ID] = sv.Clone()
	s.surveyOrder = append(s.surveyOrder, sv.ID)
	return nil
}

func (s *MemoryStore) UpdateSurvey(_ context.Context, sv *services.Survey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.surveys[sv.ID]
	if !ok {
		return false, nil
	}
	next := sv.Clone()
	next.AssignedGroups = cur.AssignedGroups
	s.surveys[sv.ID] = next
	return true, nil
}

func (s *MemoryStore) DeleteSurvey(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surveys[id]; !ok {
		return false, nil
	}
	delete(s.surveys, id)
	s.surveyOrder = without(s.surveyOrder, id)
	return true, nil
}

func (s *MemoryStore) GetSurvey(_ context.Context, id string) (*services.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surveys[id].Clone(), nil
}

func (s *MemoryStore) ListSurveys(context.Context) ([]*services.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Survey, 0, len(s.surveyOrder))
	for _, id := range s.surveyOrder {
		out = append(out, s.surveys[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) AddResponse(_ context.Context, r *services.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.responses {
		if cur.ID == r.ID {
			return fmt.Errorf("response %s already exists", r.ID)
		}
	}
	s.responses = append(s.responses, r.Clone())
	return nil
}

func (s *MemoryStore) PutResponse(_ context.Context, r *services.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.responses {
		if cur.ID == r.ID {
			s.responses[i] = r.Clone()
			return nil
		}
	}
	s.responses = append(s.responses, r.Clone())
	return nil
}

func (s *MemoryStore) ListResponses(_ context.Context, filter services.ResponseFilter) ([]*services.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Response{}
	for _, r := range s.responses {
		if filter.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, g *services.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return fmt.Errorf("group %s already exists", g.ID)
	}
	s.groups[g.ID] = g.Clone()
	s.groupOrder = append(s.groupOrder, g.ID)
	return nil
}

func (s *MemoryStore) UpdateGroup(_ context.Context, g *services.Group) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		return false, nil
	}
	s.groups[g.ID] = g.Clone()
	return true, nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id string) (*services.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[id].Clone(), nil
}

func (s *MemoryStore) ListGroups(context.Context) ([]*services.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Group, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		out = append(out, s.groups[id].Clone())
	}
	return out, nil
}

// editGroup runs fn on the stored group while holding the write lock.
func (s *MemoryStore) editGroup(groupID string, fn func(g *services.Group) bool) (*services.Group, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, false, nil
	}
	changed := fn(g)
	return g.Clone(), changed, nil
}

func (s *MemoryStore) AddGroupMember(_ context.Context, groupID, userID string) (*services.Group, bool, error) {
	return s.editGroup(groupID, func(g *services.Group) (changed bool) {
		g.Members, changed = services.AddID(g.Members, userID)
		return changed
	})
}

func (s *MemoryStore) RemoveGroupMember(_ context.Context, groupID, userID string) (*services.Group, bool, error) {
	return s.editGroup(groupID, func(g *services.Group) (changed bool) {
		g.Members, changed = services.RemoveID(g.Members, userID)
		return changed
	})
}

func (s *MemoryStore) AssignGroupSurvey(_ context.Context, groupID, surveyID string) (*services.Group, bool, error) {
	return s.editGroup(groupID, func(g *services.Group) (changed bool) {
		g.AssignedSurveys, changed = services.AddID(g.AssignedSurveys, surveyID)
		if sv, ok := s.surveys[surveyID]; ok {
			sv.AssignedGroups, _ = services.AddID(sv.AssignedGroups, groupID)
		}
		return changed
	})
}

func (s *MemoryStore) UnassignGroupSurvey(_ context.Context, groupID, surveyID string) (*services.Group, bool, error) {
	return s.editGroup(groupID, func(g *services.Group) (changed bool) {
		g.AssignedSurveys, changed = services.RemoveID(g.AssignedSurveys, surveyID)
		if sv, ok := s.surveys[surveyID]; ok {
			sv.AssignedGroups, _ = services.RemoveID(sv.AssignedGroups, groupID)
		}
		return changed
	})
}

func (s *MemoryStore) CreateTemplate(_ context.Context, t *services.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; ok {
		return fmt.Errorf("template %s already exists", t.ID)
	}
	s.templates[t.ID] = t.Clone()
	s.tplOrder = append(s.tplOrder, t.ID)
	return nil
}

func (s *MemoryStore) UpdateTemplate(_ context.Context, t *services.Template) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; !ok {
		return false, nil
	}
	s.templates[t.ID] = t.Clone()
	return true, nil
}

func (s *MemoryStore) DeleteTemplate(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return false, nil
	}
	delete(s.templates, id)
	s.tplOrder = without(s.tplOrder, id)
	return true, nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (*services.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates[id].Clone(), nil
}

func (s *MemoryStore) ListTemplates(context.Context) ([]*services.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Template, 0, len(s.tplOrder))
	for _, id := range s.tplOrder {
		out = append(out, s.templates[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.userOrder = append(s.userOrder, u.ID)
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ListUsers(context.Context) ([]*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		cp := *s.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AddAudit(_ context.Context, e services.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *MemoryStore) ListAudit(context.Context) ([]services.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]services.AuditEntry(nil), s.audit...), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

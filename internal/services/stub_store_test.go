package services

import (
	"context"
	"sync"
	"time"
)

// stubStore is an in-memory store for service tests. Each *Err field, when
// set, is returned by the matching read.
type stubStore struct {
	mu        sync.Mutex
	surveys   []*Survey
	responses []*Response
	groups    []*Group
	users     []*User
	templates []*Template
	audit     []AuditEntry

	surveyErr    error
	surveysErr   error
	responsesErr error
	groupsErr    error
	usersErr     error
	filters      []ResponseFilter

	// groupReadDelay stalls GetGroup to widen races in concurrency tests.
	groupReadDelay time.Duration
}

func (s *stubStore) GetSurvey(_ context.Context, id string) (*Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surveyErr != nil {
		return nil, s.surveyErr
	}
	for _, sv := range s.surveys {
		if sv.ID == id {
			return sv.Clone(), nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListSurveys(context.Context) ([]*Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surveysErr != nil {
		return nil, s.surveysErr
	}
	out := make([]*Survey, 0, len(s.surveys))
	for _, sv := range s.surveys {
		out = append(out, sv.Clone())
	}
	return out, nil
}

func (s *stubStore) CreateSurvey(_ context.Context, sv *Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys = append(s.surveys, sv.Clone())
	return nil
}

func (s *stubStore) UpdateSurvey(_ context.Context, sv *Survey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.surveys {
		if cur.ID == sv.ID {
			next := sv.Clone()
			next.AssignedGroups = cur.AssignedGroups
			s.surveys[i] = next
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) DeleteSurvey(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.surveys {
		if cur.ID == id {
			s.surveys = append(s.surveys[:i], s.surveys[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) AddResponse(_ context.Context, r *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r.Clone())
	return nil
}

func (s *stubStore) ListResponses(_ context.Context, f ResponseFilter) ([]*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, f)
	if s.responsesErr != nil {
		return nil, s.responsesErr
	}
	out := []*Response{}
	for _, r := range s.responses {
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *stubStore) CreateGroup(_ context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, g.Clone())
	return nil
}

// editGroup applies fn to the stored group under the lock.
func (s *stubStore) editGroup(groupID string, fn func(g *Group) bool) (*Group, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.ID == groupID {
			changed := fn(g)
			return g.Clone(), changed, nil
		}
	}
	return nil, false, nil
}

func (s *stubStore) surveyLocked(id string) *Survey {
	for _, sv := range s.surveys {
		if sv.ID == id {
			return sv
		}
	}
	return nil
}

func (s *stubStore) AddGroupMember(_ context.Context, groupID, userID string) (*Group, bool, error) {
	return s.editGroup(groupID, func(g *Group) (changed bool) {
		g.Members, changed = AddID(g.Members, userID)
		return changed
	})
}

func (s *stubStore) RemoveGroupMember(_ context.Context, groupID, userID string) (*Group, bool, error) {
	return s.editGroup(groupID, func(g *Group) (changed bool) {
		g.Members, changed = RemoveID(g.Members, userID)
		return changed
	})
}

func (s *stubStore) AssignGroupSurvey(_ context.Context, groupID, surveyID string) (*Group, bool, error) {
	return s.editGroup(groupID, func(g *Group) (changed bool) {
		g.AssignedSurveys, changed = AddID(g.AssignedSurveys, surveyID)
		if sv := s.surveyLocked(surveyID); sv != nil {
			sv.AssignedGroups, _ = AddID(sv.AssignedGroups, groupID)
		}
		return changed
	})
}

func (s *stubStore) UnassignGroupSurvey(_ context.Context, groupID, surveyID string) (*Group, bool, error) {
	return s.editGroup(groupID, func(g *Group) (changed bool) {
		g.AssignedSurveys, changed = RemoveID(g.AssignedSurveys, surveyID)
		if sv := s.surveyLocked(surveyID); sv != nil {
			sv.AssignedGroups, _ = RemoveID(sv.AssignedGroups, groupID)
		}
		return changed
	})
}

func (s *stubStore) GetGroup(_ context.Context, id string) (*Group, error) {
	if s.groupReadDelay > 0 {
		time.Sleep(s.groupReadDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.ID == id {
			return g.Clone(), nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListGroups(context.Context) ([]*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupsErr != nil {
		return nil, s.groupsErr
	}
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Clone())
	}
	return out, nil
}

func (s *stubStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListUsers(context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usersErr != nil {
		return nil, s.usersErr
	}
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *stubStore) UpsertUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	for i, cur := range s.users {
		if cur.ID == u.ID {
			s.users[i] = &cp
			return nil
		}
	}
	s.users = append(s.users, &cp)
	return nil
}

func (s *stubStore) AddAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func newFixtureStore() *stubStore {
	return &stubStore{
		surveys: []*Survey{
			{ID: "s1", Title: "Onboarding", Status: StatusActive, CreatorID: "c1", Questions: []Question{
				{ID: "q1", Type: QuestionTextInput, Text: "Name a highlight", Required: true},
				{ID: "q2", Type: QuestionMultipleChoice, Text: "Team", Options: []string{"red", "blue"}},
				{ID: "q3", Type: QuestionRatingScale, Text: "Rate us", Min: intPtr(1), Max: intPtr(5)},
			}, AssignedGroups: []string{"g1"}},
			{ID: "s2", Title: "Exit", Status: StatusClosed, CreatorID: "c1", AssignedGroups: []string{"g1"}},
			{ID: "s3", Title: "Draft", Status: StatusDraft, CreatorID: "c2"},
		},
		groups: []*Group{
			{ID: "g1", Name: "Engineering", Members: []string{"u1", "u2"}, AssignedSurveys: []string{"s1", "s2"}},
		},
		users: []*User{
			{ID: "admin", Username: "root", Role: RoleAdmin},
			{ID: "c1", Username: "carol", Role: RoleCreator},
			{ID: "c2", Username: "cody", Role: RoleCreator},
			{ID: "u1", Username: "uma", Role: RoleRespondent},
			{ID: "u2", Username: "ugo", Role: RoleRespondent},
			{ID: "u3", Username: "uri", Role: RoleRespondent},
		},
	}
}

func intPtr(v int) *int { return &v }

func (s *stubStore) ListAudit(context.Context) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.audit...), nil
}

func (s *stubStore) CreateTemplate(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t.Clone())
	return nil
}

func (s *stubStore) UpdateTemplate(_ context.Context, t *Template) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.templates {
		if cur.ID == t.ID {
			s.templates[i] = t.Clone()
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) DeleteTemplate(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.templates {
		if cur.ID == id {
			s.templates = append(s.templates[:i], s.templates[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) GetTemplate(_ context.Context, id string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListTemplates(context.Context) ([]*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Clone())
	}
	return out, nil
}

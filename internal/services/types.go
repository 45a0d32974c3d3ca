package services

import "time"

type SurveyStatus string

const (
	StatusDraft  SurveyStatus = "draft"
	StatusActive SurveyStatus = "active"
	StatusClosed SurveyStatus = "closed"
)

// Valid reports whether st is one of the known survey statuses.
func (st SurveyStatus) Valid() bool {
	switch st {
	case StatusDraft, StatusActive, StatusClosed:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTextInput      QuestionType = "text-input"
	QuestionRatingScale    QuestionType = "rating-scale"
)

func (qt QuestionType) Valid() bool {
	switch qt {
	case QuestionMultipleChoice, QuestionTextInput, QuestionRatingScale:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleCreator    Role = "creator"
	RoleRespondent Role = "respondent"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCreator, RoleRespondent:
		return true
	}
	return false
}

// Question belongs to exactly one survey; IDs are unique within it.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Required bool         `json:"required,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Min      *int         `json:"min,omitempty"`
	Max      *int         `json:"max,omitempty"`
}

type Survey struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	CreatorID      string       `json:"creator_id,omitempty"`
	Status         SurveyStatus `json:"status"`
	Questions      []Question   `json:"questions"`
	AssignedGroups []string     `json:"assigned_groups"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (sv *Survey) Clone() *Survey {
	if sv == nil {
		return nil
	}
	cp := *sv
	cp.Questions = cloneQuestions(sv.Questions)
	cp.AssignedGroups = append([]string(nil), sv.AssignedGroups...)
	return &cp
}

// Template is a reusable question set that new surveys can start from.
type Template struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatorID   string     `json:"creator_id,omitempty"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Questions = cloneQuestions(t.Questions)
	return &cp
}

// Response is one submission. UserID is empty for anonymous submissions and
// CompletionTime, when set, is the time spent on the form in seconds.
type Response struct {
	ID             string            `json:"id"`
	SurveyID       string            `json:"survey_id"`
	UserID         string            `json:"user_id,omitempty"`
	Answers        map[string]string `json:"answers"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	CompletionTime *float64          `json:"completion_time,omitempty"`
}

func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Answers = make(map[string]string, len(r.Answers))
	for k, v := range r.Answers {
		cp.Answers[k] = v
	}
	if r.CompletionTime != nil {
		ct := *r.CompletionTime
		cp.CompletionTime = &ct
	}
	return &cp
}

type Group struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Members         []string  `json:"members"`
	AssignedSurveys []string  `json:"assigned_surveys"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasMember reports whether userID is listed in the group's members.
func (g *Group) HasMember(userID string) bool {
	return containsString(g.Members, userID)
}

func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	cp.AssignedSurveys = append([]string(nil), g.AssignedSurveys...)
	return &cp
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ResponseFilter narrows a response listing; empty fields match everything.
type ResponseFilter struct {
	SurveyID string
	UserID   string
}

// Match reports whether r passes the filter.
func (f ResponseFilter) Match(r *Response) bool {
	if r == nil {
		return false
	}
	if f.SurveyID != "" && r.SurveyID != f.SurveyID {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	return true
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

func cloneQuestions(in []Question) []Question {
	out := make([]Question, len(in))
	for i, q := range in {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// AddID appends v unless list already holds it and reports whether it did.
func AddID(list []string, v string) ([]string, bool) {
	if containsString(list, v) {
		return list, false
	}
	return append(list, v), true
}

// RemoveID drops every occurrence of v and reports whether there was one.
func RemoveID(list []string, v string) ([]string, bool) {
	out := make([]string, 0, len(list))
	removed := false
	for _, s := range list {
		if s == v {
			removed = true
			continue
		}
		out = append(out, s)
	}
	return out, removed
}

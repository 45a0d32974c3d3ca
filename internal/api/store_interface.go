package api

import (
	"context"

	"github.com/soaringjerry/surveydesk/internal/services"
)

// Store is the persistence contract shared by the memory, SQLite and
// MongoDB backends. Get* methods return nil, nil when the record does not
// exist; Update*/Delete* report whether a record was touched.
//
// UpdateSurvey never writes AssignedGroups. Assignment and membership only
// change through the group edit methods, which each run as one atomic step
// and return the group afterwards (nil when missing) plus whether the set
// changed. Assign/Unassign mirror the edit onto the survey when it exists.
type Store interface {
	CreateSurvey(ctx context.Context, sv *services.Survey) error
	UpdateSurvey(ctx context.Context, sv *services.Survey) (bool, error)
	DeleteSurvey(ctx context.Context, id string) (bool, error)
	GetSurvey(ctx context.Context, id string) (*services.Survey, error)
	ListSurveys(ctx context.Context) ([]*services.Survey, error)

	// PutResponse inserts r or replaces the stored response with its ID.
	PutResponse(ctx context.Context, r *services.Response) error
	AddResponse(ctx context.Context, r *services.Response) error
	ListResponses(ctx context.Context, filter services.ResponseFilter) ([]*services.Response, error)

	CreateGroup(ctx context.Context, g *services.Group) error
	UpdateGroup(ctx context.Context, g *services.Group) (bool, error)
	GetGroup(ctx context.Context, id string) (*services.Group, error)
	ListGroups(ctx context.Context) ([]*services.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID string) (*services.Group, bool, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) (*services.Group, bool, error)
	AssignGroupSurvey(ctx context.Context, groupID, surveyID string) (*services.Group, bool, error)
	UnassignGroupSurvey(ctx context.Context, groupID, surveyID string) (*services.Group, bool, error)

	CreateTemplate(ctx context.Context, t *services.Template) error
	UpdateTemplate(ctx context.Context, t *services.Template) (bool, error)
	DeleteTemplate(ctx context.Context, id string) (bool, error)
	GetTemplate(ctx context.Context, id string) (*services.Template, error)
	ListTemplates(ctx context.Context) ([]*services.Template, error)

	UpsertUser(ctx context.Context, u *services.User) error
	GetUser(ctx context.Context, id string) (*services.User, error)
	ListUsers(ctx context.Context) ([]*services.User, error)

	AddAudit(ctx context.Context, e services.AuditEntry) error
	ListAudit(ctx context.Context) ([]services.AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ services.AccessStore    = Store(nil)
	_ services.AnalyticsStore = Store(nil)
	_ services.ResponseStore  = Store(nil)
	_ services.SurveyStore    = Store(nil)
	_ services.GroupStore     = Store(nil)
	_ services.UserStore      = Store(nil)
	_ services.TemplateStore  = Store(nil)
	_ services.AuditStore     = Store(nil)

	_ Store = (*MemoryStore)(nil)
)

package db

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/surveydesk/internal/api"
	"github.com/soaringjerry/surveydesk/internal/services"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, RunMigrations(db, ""))
	st, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return st
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, RunMigrations(st.db, filepath.Join(t.TempDir(), "missing")))
}

func TestSQLiteSurveyLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 4, 10, 0, 0, 123, time.UTC)
	sv := &services.Survey{
		ID: "s1", Title: "Feedback", CreatorID: "c1", Status: services.StatusDraft,
		Questions: []services.Question{
			{ID: "q1", Type: services.QuestionMultipleChoice, Text: "Colour?", Options: []string{"red", "blue"}},
		},
		CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, st.CreateSurvey(ctx, sv))
	require.Error(t, st.CreateSurvey(ctx, sv), "duplicate id")

	got, err := st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sv.Questions, got.Questions)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Empty(t, got.AssignedGroups)

	got.Status = services.StatusActive
	got.AssignedGroups = []string{"ignored"}
	ok, err := st.UpdateSurvey(ctx, got)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.UpdateSurvey(ctx, &services.Survey{ID: "nope"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.CreateSurvey(ctx, &services.Survey{ID: "s2", Title: "Second", Status: services.StatusClosed}))
	list, err := st.ListSurveys(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, services.StatusActive, list[0].Status)
	assert.Empty(t, list[0].AssignedGroups)

	ok, err = st.DeleteSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	missing, err := st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteResponsesFilter(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	ct := 42.5
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for _, r := range []*services.Response{
		{ID: "r1", SurveyID: "s1", UserID: "u1", Answers: map[string]string{"q1": "a"}, SubmittedAt: at, CompletionTime: &ct},
		{ID: "r2", SurveyID: "s1", UserID: "u2", SubmittedAt: at},
		{ID: "r3", SurveyID: "s2", UserID: "u1", SubmittedAt: at},
	} {
		require.NoError(t, st.AddResponse(ctx, r))
	}

	all, err := st.ListResponses(ctx, services.ResponseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	require.NotNil(t, all[0].CompletionTime)
	assert.InDelta(t, 42.5, *all[0].CompletionTime, 1e-9)
	assert.Nil(t, all[1].CompletionTime)
	assert.Empty(t, all[1].Answers)

	byUser, err := st.ListResponses(ctx, services.ResponseFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	both, err := st.ListResponses(ctx, services.ResponseFilter{SurveyID: "s1", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "r1", both[0].ID)
	assert.Equal(t, map[string]string{"q1": "a"}, both[0].Answers)
}

func TestSQLiteGroupsUsersAudit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateGroup(ctx, &services.Group{ID: "g1", Name: "Team", Members: []string{"u1"}}))
	g, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)
	g.Members = append(g.Members, "u2")
	g.AssignedSurveys = []string{"s1"}
	ok, err := st.UpdateGroup(ctx, g)
	require.NoError(t, err)
	assert.True(t, ok)
	groups, err := st.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"u1", "u2"}, groups[0].Members)
	assert.Equal(t, []string{"s1"}, groups[0].AssignedSurveys)

	require.NoError(t, st.UpsertUser(ctx, &services.User{ID: "u1", Username: "ann", Role: services.RoleRespondent}))
	require.NoError(t, st.UpsertUser(ctx, &services.User{ID: "u1", Username: "ann", Role: services.RoleCreator}))
	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, services.RoleCreator, u.Role)
	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	nobody, err := st.GetUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, nobody)

	require.NoError(t, st.AddAudit(ctx, services.AuditEntry{Time: time.Now(), Actor: "a", Action: "survey.create", Target: "s1"}))
	audit, err := st.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "survey.create", audit[0].Action)
	require.NoError(t, st.Ping(ctx))
}

func TestSQLiteGroupEditsAreAtomic(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, &services.Group{ID: "g1", Name: "Crowd"}))
	require.NoError(t, st.CreateSurvey(ctx, &services.Survey{ID: "s1", Title: "Pulse", Status: services.StatusActive}))

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _, err := st.AddGroupMember(ctx, "g1", id)
			errs <- err
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	g, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, g.Members, n)

	g, changed, err := st.AssignGroupSurvey(ctx, "g1", "s1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"s1"}, g.AssignedSurveys)
	_, changed, err = st.AssignGroupSurvey(ctx, "g1", "s1")
	require.NoError(t, err)
	assert.False(t, changed)
	sv, err := st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, sv.AssignedGroups)

	// a stale survey write does not drop the assignment
	sv.AssignedGroups = nil
	sv.Title = "Renamed"
	_, err = st.UpdateSurvey(ctx, sv)
	require.NoError(t, err)
	sv, err = st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", sv.Title)
	assert.Equal(t, []string{"g1"}, sv.AssignedGroups)

	g, changed, err = st.UnassignGroupSurvey(ctx, "g1", "s1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, g.AssignedSurveys)
	sv, err = st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sv.AssignedGroups)

	g, changed, err = st.RemoveGroupMember(ctx, "g1", "u0")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, g.Members, n-1)

	missing, changed, err := st.AddGroupMember(ctx, "ghost", "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.False(t, changed)
}

func TestSQLiteSnapshotImportTwice(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	snap := &api.Snapshot{
		Users:   []*services.User{{ID: "u1", Username: "ann", Role: services.RoleRespondent, CreatedAt: at}},
		Groups:  []*services.Group{{ID: "g1", Name: "Team", Members: []string{"u1"}, AssignedSurveys: []string{"s1"}, CreatedAt: at}},
		Surveys: []*services.Survey{{ID: "s1", Title: "Pulse", Status: services.StatusActive, CreatedAt: at, UpdatedAt: at}},
		Templates: []*services.Template{{ID: "t1", Name: "Pulse", Questions: []services.Question{
			{ID: "q1", Type: services.QuestionTextInput, Text: "Why?"},
		}, CreatedAt: at, UpdatedAt: at}},
		Responses: []*services.Response{{ID: "r1", SurveyID: "s1", UserID: "u1", Answers: map[string]string{"q1": "a"}, SubmittedAt: at}},
	}
	for i := 0; i < 2; i++ {
		stats, err := api.CopySnapshot(ctx, snap, st)
		require.NoError(t, err, "import %d", i+1)
		assert.Equal(t, api.CopyStats{Users: 1, Groups: 1, Surveys: 1, Templates: 1, Responses: 1}, stats)
	}

	rs, err := st.ListResponses(ctx, services.ResponseFilter{})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	sv, err := st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, sv.AssignedGroups)
	tpls, err := st.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, tpls, 1)
	assert.Equal(t, "Why?", tpls[0].Questions[0].Text)

	// a changed response under the same id replaces the stored one
	snap.Responses[0].Answers = map[string]string{"q1": "b"}
	require.NoError(t, st.PutResponse(ctx, snap.Responses[0]))
	rs, err = st.ListResponses(ctx, services.ResponseFilter{SurveyID: "s1"})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "b", rs[0].Answers["q1"])
	require.Error(t, st.AddResponse(ctx, snap.Responses[0]))
}

func TestSQLiteTemplates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tpl := &services.Template{
		ID: "t1", Name: "Retro", CreatorID: "c1",
		Questions: []services.Question{{ID: "q1", Type: services.QuestionRatingScale, Text: "Sprint?", Min: intPtr(1), Max: intPtr(5)}},
		CreatedAt: at, UpdatedAt: at,
	}
	require.NoError(t, st.CreateTemplate(ctx, tpl))
	require.Error(t, st.CreateTemplate(ctx, tpl))

	got, err := st.GetTemplate(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tpl.Questions, got.Questions)
	assert.True(t, got.CreatedAt.Equal(at))

	got.Name = "Retro v2"
	ok, err := st.UpdateTemplate(ctx, got)
	require.NoError(t, err)
	assert.True(t, ok)
	list, err := st.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Retro v2", list[0].Name)

	ok, err = st.DeleteTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	missing, err := st.GetTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, missing)
	ok, err = st.UpdateTemplate(ctx, &services.Template{ID: "t1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func intPtr(v int) *int { return &v }

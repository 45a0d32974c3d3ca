package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/surveydesk/internal/services"
)

const yamlSnapshot = `
users:
  - id: u1
    username: ann
    role: respondent
    created_at: "2024-01-02T03:04:05Z"
groups:
  - id: g1
    name: Team
    members: [u1]
    assigned_surveys: [s1]
    created_at: "2024-01-02T03:04:05Z"
surveys:
  - id: s1
    title: Pulse
    status: active
    questions:
      - id: q1
        type: rating-scale
        text: Mood?
        min: 1
        max: 5
    assigned_groups: [g1]
    created_at: "2024-01-02T03:04:05Z"
    updated_at: "2024-01-02T03:04:05Z"
templates:
  - id: t1
    name: Pulse template
    questions:
      - id: q1
        type: text-input
        text: Anything else?
    created_at: "2024-01-02T03:04:05Z"
    updated_at: "2024-01-02T03:04:05Z"
responses:
  - id: r1
    survey_id: s1
    user_id: u1
    answers: {q1: "4"}
    submitted_at: "2024-01-03T10:00:00Z"
  -
`

func TestLoadSnapshotYAMLAndCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSnapshot), 0o600))

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, snap.Surveys, 1)
	require.NotNil(t, snap.Surveys[0].Questions[0].Max)
	assert.Equal(t, 5, *snap.Surveys[0].Questions[0].Max)

	ctx := context.Background()
	st := NewMemoryStore()
	stats, err := CopySnapshot(ctx, snap, st)
	require.NoError(t, err)
	assert.Equal(t, CopyStats{Users: 1, Groups: 1, Surveys: 1, Templates: 1, Responses: 1}, stats)

	// a second copy replaces every record instead of duplicating it
	_, err = CopySnapshot(ctx, snap, st)
	require.NoError(t, err)
	surveys, err := st.ListSurveys(ctx)
	require.NoError(t, err)
	require.Len(t, surveys, 1)
	assert.Equal(t, []string{"g1"}, surveys[0].AssignedGroups)

	rs, err := st.ListResponses(ctx, services.ResponseFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "4", rs[0].Answers["q1"])

	tpls, err := st.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, tpls, 1)
	assert.Equal(t, "Pulse template", tpls[0].Name)

	ov, err := services.NewAnalyticsService(st, nil, nil).Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ov.TotalResponses)
}

func TestCopySnapshotRebuildsSurveySideOfAssignment(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	snap := &Snapshot{
		Surveys: []*services.Survey{{ID: "s1", Title: "A", Status: services.StatusActive}},
		Groups:  []*services.Group{{ID: "g1", Name: "Team", AssignedSurveys: []string{"s1", "gone"}}},
	}
	_, err := CopySnapshot(ctx, snap, st)
	require.NoError(t, err)

	sv, err := st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, sv.AssignedGroups)
	g, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "gone"}, g.AssignedSurveys)
}

func TestLoadSnapshotJSONRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":[],"tenants":[]}`), 0o600))
	_, err := LoadSnapshot(path)
	assert.ErrorContains(t, err, "tenants")

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

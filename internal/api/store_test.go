package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/surveydesk/internal/services"
)

func TestMemoryStoreCopiesRecords(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	sv := &services.Survey{ID: "s1", Title: "A", AssignedGroups: []string{"g1"}}
	require.NoError(t, st.CreateSurvey(ctx, sv))
	require.Error(t, st.CreateSurvey(ctx, sv))

	sv.AssignedGroups[0] = "mutated"
	got, err := st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, got.AssignedGroups)

	got.Title = "B"
	again, _ := st.GetSurvey(ctx, "s1")
	assert.Equal(t, "A", again.Title)
}

func TestMemoryStoreOrderAndDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	for _, id := range []string{"s3", "s1", "s2"} {
		require.NoError(t, st.CreateSurvey(ctx, &services.Survey{ID: id}))
	}
	ok, err := st.DeleteSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.DeleteSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := st.ListSurveys(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, sv := range list {
		ids = append(ids, sv.ID)
	}
	assert.Equal(t, []string{"s3", "s2"}, ids)

	missing, err := st.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreResponseFilter(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.AddResponse(ctx, &services.Response{ID: "r1", SurveyID: "s1", UserID: "u1"}))
	require.NoError(t, st.AddResponse(ctx, &services.Response{ID: "r2", SurveyID: "s2", UserID: "u1"}))
	require.NoError(t, st.AddResponse(ctx, &services.Response{ID: "r3", SurveyID: "s1"}))

	rs, err := st.ListResponses(ctx, services.ResponseFilter{SurveyID: "s1"})
	require.NoError(t, err)
	assert.Len(t, rs, 2)
	rs, err = st.ListResponses(ctx, services.ResponseFilter{SurveyID: "s1", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "r1", rs[0].ID)
}

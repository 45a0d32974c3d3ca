package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func statusPtr(s SurveyStatus) *SurveyStatus { return &s }

func TestSurveyCreateAndUpdate(t *testing.T) {
	store := &stubStore{}
	svc := NewSurveyService(store)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()
	carol := Actor{UserID: "c1", Role: RoleCreator}

	sv, err := svc.Create(ctx, carol, SurveyInput{
		Title: strPtr("  Weekly check-in "),
		Questions: []Question{
			{Type: QuestionTextInput, Text: "How are you?", Options: []string{"ignored"}},
			{ID: "mood", Type: QuestionRatingScale, Text: "Mood", Min: intPtr(1), Max: intPtr(10)},
		},
	})
	require.NoError(t, err)
	assert.Len(t, sv.ID, 12)
	assert.Equal(t, "Weekly check-in", sv.Title)
	assert.Equal(t, StatusDraft, sv.Status)
	assert.Equal(t, "c1", sv.CreatorID)
	assert.Equal(t, fixed, sv.CreatedAt)
	require.Len(t, sv.Questions, 2)
	assert.NotEmpty(t, sv.Questions[0].ID)
	assert.Nil(t, sv.Questions[0].Options)
	assert.Equal(t, "mood", sv.Questions[1].ID)

	updated, err := svc.Update(ctx, carol, sv.ID, SurveyInput{Status: statusPtr(StatusActive)})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)
	assert.Equal(t, "Weekly check-in", updated.Title)

	stored, err := svc.Get(ctx, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
	require.Len(t, store.audit, 2)
	assert.Equal(t, "survey.update", store.audit[1].Action)
}

func TestSurveyValidation(t *testing.T) {
	svc := NewSurveyService(&stubStore{})
	ctx := context.Background()
	carol := Actor{UserID: "c1", Role: RoleCreator}

	cases := map[string]SurveyInput{
		"missing title":  {},
		"bad status":     {Title: strPtr("t"), Status: statusPtr("archived")},
		"bad question":   {Title: strPtr("t"), Questions: []Question{{Type: "essay", Text: "?"}}},
		"no options":     {Title: strPtr("t"), Questions: []Question{{Type: QuestionMultipleChoice, Text: "?"}}},
		"inverted range": {Title: strPtr("t"), Questions: []Question{{Type: QuestionRatingScale, Text: "?", Min: intPtr(5), Max: intPtr(1)}}},
		"duplicate id":   {Title: strPtr("t"), Questions: []Question{{ID: "a", Type: QuestionTextInput, Text: "1"}, {ID: "a", Type: QuestionTextInput, Text: "2"}}},
		"blank question": {Title: strPtr("t"), Questions: []Question{{Type: QuestionTextInput, Text: " "}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, carol, in)
			assert.Equal(t, ErrorInvalid, errCode(t, err))
		})
	}
}

func TestSurveyPermissions(t *testing.T) {
	store := newFixtureStore()
	svc := NewSurveyService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, Actor{UserID: "u1", Role: RoleRespondent}, SurveyInput{Title: strPtr("x")})
	assert.Equal(t, ErrorForbidden, errCode(t, err))

	_, err = svc.Update(ctx, Actor{UserID: "c2", Role: RoleCreator}, "s1", SurveyInput{Title: strPtr("mine now")})
	assert.Equal(t, ErrorForbidden, errCode(t, err))

	_, err = svc.Update(ctx, Actor{UserID: "admin", Role: RoleAdmin}, "s1", SurveyInput{Title: strPtr("admin edit")})
	assert.NoError(t, err)

	err = svc.Delete(ctx, Actor{UserID: "c1", Role: RoleCreator}, "missing")
	assert.ErrorIs(t, err, ErrSurveyNotFound)

	require.NoError(t, svc.Delete(ctx, Actor{UserID: "c1", Role: RoleCreator}, "s2"))
	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

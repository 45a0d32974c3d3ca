package services

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return recs
}

func exportSurvey() *Survey {
	return &Survey{
		ID:    "s1",
		Title: "Team Pulse",
		Questions: []Question{
			{ID: "q1", Type: QuestionTextInput, Text: "What went well, overall?"},
			{ID: "q2", Type: QuestionRatingScale, Text: "Rate the week"},
		},
	}
}

func TestExportQuestionSummaryCSV(t *testing.T) {
	sv := exportSurvey()
	responses := []*Response{
		{SurveyID: "s1", Answers: map[string]string{"q1": "ship it"}},
		{SurveyID: "s1", Answers: map[string]string{"q1": "demo", "q2": "4"}},
	}
	b, err := ExportQuestionSummaryCSV(QuestionDistribution(sv, responses))
	require.NoError(t, err)
	recs := readCSV(t, b)
	assert.Equal(t, [][]string{
		{"Question", "Response Count"},
		{"What went well, overall?", "2"},
		{"Rate the week", "1"},
	}, recs)
}

func TestExportResponsesCSV(t *testing.T) {
	sv := exportSurvey()
	at := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	responses := []*Response{
		{ID: "r1", SurveyID: "s1", UserID: "u1", SubmittedAt: at, Answers: map[string]string{"q2": "5", "legacy": "x"}},
		{ID: "r2", SurveyID: "s1", SubmittedAt: at, Answers: map[string]string{"q1": "fine"}},
		{ID: "r3", SurveyID: "other", UserID: "u1"},
	}
	users := []*User{{ID: "u1", Username: "grace"}}
	b, err := ExportResponsesCSV(sv, responses, users)
	require.NoError(t, err)
	recs := readCSV(t, b)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"response_id", "respondent", "submitted_at", "What went well, overall?", "Rate the week"}, recs[0])
	assert.Equal(t, []string{"r1", "grace", "2024-06-01T08:30:00Z", "", "5"}, recs[1])
	assert.Equal(t, []string{"r2", "Anonymous", "2024-06-01T08:30:00Z", "fine", ""}, recs[2])

	_, err = ExportResponsesCSV(nil, responses, users)
	assert.ErrorIs(t, err, ErrSurveyNotFound)
}

func TestBuildReport(t *testing.T) {
	sv := exportSurvey()
	responses := []*Response{
		{SurveyID: "s1", UserID: "u1", Answers: map[string]string{"q2": "3", "q1": "ok", "gone": "?"}},
		{SurveyID: "s1", Answers: map[string]string{}},
		{SurveyID: "s9", Answers: map[string]string{"q1": "other survey"}},
	}
	rep := BuildReport(sv, responses, []*User{{ID: "u1", Username: "linus"}})
	assert.Equal(t, "Team Pulse", rep.Title)
	assert.Equal(t, 2, rep.TotalResponses)
	assert.InDelta(t, 1.5, rep.AverageAnswers, 1e-9)
	require.Len(t, rep.Respondents, 2)
	assert.Equal(t, "linus", rep.Respondents[0].Name)
	assert.Equal(t, []ReportAnswer{
		{Question: "What went well, overall?", Answer: "ok"},
		{Question: "Rate the week", Answer: "3"},
	}, rep.Respondents[0].Answers)
	assert.Equal(t, AnonymousRespondent, rep.Respondents[1].Name)
}

func TestExportReportPDF(t *testing.T) {
	sv := exportSurvey()
	var responses []*Response
	for i := 0; i < 40; i++ {
		responses = append(responses, &Response{SurveyID: "s1", Answers: map[string]string{"q1": "café", "q2": "4"}})
	}
	b, err := ExportReportPDF(BuildReport(sv, responses, nil))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))
	assert.Greater(t, bytes.Count(b, []byte("/Type /Page\n")), 1)
}

package services

import (
	"context"
	"regexp"
	"strings"
)

type ExportFormat string

const (
	ExportSummary   ExportFormat = "summary"
	ExportResponses ExportFormat = "responses"
	ExportPDF       ExportFormat = "pdf"
)

type ExportParams struct {
	SurveyID string
	Format   ExportFormat
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store AnalyticsStore
}

func NewExportService(store AnalyticsStore) *ExportService {
	return &ExportService{store: store}
}

func (s *ExportService) Export(ctx context.Context, params ExportParams) (*ExportResult, error) {
	if params.SurveyID == "" {
		return nil, NewInvalidError("survey_id required")
	}
	format := params.Format
	if format == "" {
		format = ExportSummary
	}
	switch format {
	case ExportSummary, ExportResponses, ExportPDF:
	default:
		return nil, NewInvalidError("unsupported format")
	}

	sv, responses, users, err := surveyData(ctx, s.store, params.SurveyID)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, NewDataUnavailableError("export data unavailable", err)
	}

	base := "survey_analytics_" + slugify(sv.Title, sv.ID)
	switch format {
	case ExportResponses:
		b, err := ExportResponsesCSV(sv, responses, users)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: base + "_responses.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
	case ExportPDF:
		b, err := ExportReportPDF(BuildReport(sv, responses, users))
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: base + ".pdf", ContentType: "application/pdf", Data: b}, nil
	default:
		b, err := ExportQuestionSummaryCSV(QuestionDistribution(sv, responses))
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: base + ".csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
	}
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title, fallback string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(title), "_"), "_")
	if slug == "" {
		return fallback
	}
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "_")
	}
	return slug
}

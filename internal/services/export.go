package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

// ExportQuestionSummaryCSV renders one row per question with the number of
// responses answering it.
func ExportQuestionSummaryCSV(dist []QuestionCount) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"Question", "Response Count"})
	for _, qc := range dist {
		if err := w.Write([]string{qc.QuestionText, strconv.Itoa(qc.Count)}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportResponsesCSV renders one row per response of sv with a column per
// question, in question order. Answers to unknown questions are dropped.
func ExportResponsesCSV(sv *Survey, responses []*Response, users []*User) ([]byte, error) {
	if sv == nil {
		return nil, ErrSurveyNotFound
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"response_id", "respondent", "submitted_at"}
	for _, q := range sv.Questions {
		header = append(header, q.Text)
	}
	_ = w.Write(header)
	names := usernames(users)
	for _, r := range responses {
		if r == nil || r.SurveyID != sv.ID {
			continue
		}
		row := make([]string, 0, len(header))
		row = append(row, r.ID, respondentName(names, r.UserID), r.SubmittedAt.UTC().Format(time.RFC3339))
		for _, q := range sv.Questions {
			row = append(row, r.Answers[q.ID])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

type ReportAnswer struct {
	Question string
	Answer   string
}

type ReportRespondent struct {
	Name    string
	Answers []ReportAnswer
}

// Report is the printable analytics document for one survey.
type Report struct {
	Title          string
	TotalResponses int
	AverageAnswers float64
	Questions      []QuestionCount
	Respondents    []ReportRespondent
}

// BuildReport joins the survey's summary, question distribution and
// per-response answers into a Report.
func BuildReport(sv *Survey, responses []*Response, users []*User) Report {
	summary, _ := Aggregate([]*Survey{sv}, responses).ByID(sv.ID)
	rep := Report{
		Title:          sv.Title,
		TotalResponses: summary.TotalResponses,
		AverageAnswers: summary.AverageAnswers,
		Questions:      QuestionDistribution(sv, responses),
	}
	names := usernames(users)
	for _, r := range responses {
		if r == nil || r.SurveyID != sv.ID {
			continue
		}
		rr := ReportRespondent{Name: respondentName(names, r.UserID)}
		for _, q := range sv.Questions {
			if a, ok := r.Answers[q.ID]; ok {
				rr.Answers = append(rr.Answers, ReportAnswer{Question: q.Text, Answer: a})
			}
		}
		rep.Respondents = append(rep.Respondents, rr)
	}
	return rep
}

const (
	pdfMargin     = 14.0
	pdfLineHeight = 10.0
	pdfPageBottom = 270.0
)

// ExportReportPDF lays the report out on A4 pages.
func ExportReportPDF(rep Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 12)
	pdf.AddPage()

	y := 15.0
	line := func(s string, step float64) {
		if y > pdfPageBottom {
			pdf.AddPage()
			y = 20
		}
		pdf.Text(pdfMargin, y, tr(s))
		y += step
	}

	line("Survey Analytics - "+rep.Title, pdfLineHeight)
	line(fmt.Sprintf("Total Responses: %d", rep.TotalResponses), pdfLineHeight)
	line(fmt.Sprintf("Average Answers per Response: %.2f", rep.AverageAnswers), pdfLineHeight)
	line("Questions and Answers Summary:", pdfLineHeight)
	for i, qc := range rep.Questions {
		line(fmt.Sprintf("%d. %s", i+1, qc.QuestionText), pdfLineHeight)
		line(fmt.Sprintf("   Answers: %d", qc.Count), 15)
	}

	y += 10
	line("Detailed User Responses:", pdfLineHeight)
	for i, rr := range rep.Respondents {
		line(fmt.Sprintf("User %d: %s", i+1, rr.Name), pdfLineHeight)
		for _, a := range rr.Answers {
			line(fmt.Sprintf("   %s: %s", a.Question, a.Answer), pdfLineHeight)
		}
		y += 5
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

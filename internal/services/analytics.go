package services

import (
	"sort"
	"time"
)

type SurveySummary struct {
	SurveyID             string         `json:"survey_id"`
	SurveyTitle          string         `json:"survey_title"`
	TotalResponses       int            `json:"total_responses"`
	AverageAnswers       float64        `json:"average_answers"`
	ResponseDistribution map[string]int `json:"response_distribution"`
}

// Aggregation holds one summary per input survey, in input order, and an
// index for lookups by survey ID.
type Aggregation struct {
	Summaries []SurveySummary
	index     map[string]int
}

// ByID returns the summary for surveyID.
func (a *Aggregation) ByID(surveyID string) (SurveySummary, bool) {
	if a == nil {
		return SurveySummary{}, false
	}
	i, ok := a.index[surveyID]
	if !ok {
		return SurveySummary{}, false
	}
	return a.Summaries[i], true
}

// TotalResponses sums the counted responses across all summaries, so
// orphaned responses are not included.
func (a *Aggregation) TotalResponses() int {
	if a == nil {
		return 0
	}
	n := 0
	for _, s := range a.Summaries {
		n += s.TotalResponses
	}
	return n
}

// Aggregate folds responses into per-survey statistics. Responses whose
// SurveyID matches no survey are ignored, nil entries are skipped and a
// repeated survey ID keeps its first occurrence.
func Aggregate(surveys []*Survey, responses []*Response) *Aggregation {
	agg := &Aggregation{
		Summaries: make([]SurveySummary, 0, len(surveys)),
		index:     make(map[string]int, len(surveys)),
	}
	for _, sv := range surveys {
		if sv == nil {
			continue
		}
		if _, dup := agg.index[sv.ID]; dup {
			continue
		}
		agg.index[sv.ID] = len(agg.Summaries)
		agg.Summaries = append(agg.Summaries, SurveySummary{
			SurveyID:             sv.ID,
			SurveyTitle:          sv.Title,
			ResponseDistribution: map[string]int{},
		})
	}
	answers := make([]int, len(agg.Summaries))
	for _, r := range responses {
		if r == nil {
			continue
		}
		i, ok := agg.index[r.SurveyID]
		if !ok {
			continue
		}
		sum := &agg.Summaries[i]
		sum.TotalResponses++
		answers[i] += len(r.Answers)
		for qid := range r.Answers {
			sum.ResponseDistribution[qid]++
		}
	}
	for i := range agg.Summaries {
		agg.Summaries[i].AverageAnswers = safeDiv(float64(answers[i]), float64(agg.Summaries[i].TotalResponses))
	}
	return agg
}

// Leaderboard orders summaries by TotalResponses, highest first. Ties keep
// their input order. The argument is not modified.
func Leaderboard(summaries []SurveySummary) []SurveySummary {
	out := append([]SurveySummary(nil), summaries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalResponses > out[j].TotalResponses
	})
	return out
}

// AverageResponseTime is the mean CompletionTime over the survey's
// responses. A missing completion time counts as zero.
func AverageResponseTime(surveyID string, responses []*Response) float64 {
	var total float64
	n := 0
	for _, r := range responses {
		if r == nil || r.SurveyID != surveyID {
			continue
		}
		n++
		if r.CompletionTime != nil {
			total += *r.CompletionTime
		}
	}
	return safeDiv(total, float64(n))
}

type SurveyInsight struct {
	TotalResponses int     `json:"total_responses"`
	CompletionRate float64 `json:"completion_rate"`
	AverageTime    float64 `json:"average_time"`
}

// Insight reports a survey's response count, its share of all responses as
// a percentage, and its average completion time.
func Insight(surveyID string, responses []*Response) SurveyInsight {
	total, mine := 0, 0
	for _, r := range responses {
		if r == nil {
			continue
		}
		total++
		if r.SurveyID == surveyID {
			mine++
		}
	}
	return SurveyInsight{
		TotalResponses: mine,
		CompletionRate: safeDiv(float64(mine), float64(total)) * 100,
		AverageTime:    AverageResponseTime(surveyID, responses),
	}
}

type QuestionCount struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	Count        int    `json:"count"`
}

// QuestionDistribution counts, for each question of the survey in order,
// how many of the survey's responses answer it.
func QuestionDistribution(sv *Survey, responses []*Response) []QuestionCount {
	if sv == nil {
		return nil
	}
	out := make([]QuestionCount, len(sv.Questions))
	pos := make(map[string]int, len(sv.Questions))
	for i, q := range sv.Questions {
		out[i] = QuestionCount{QuestionID: q.ID, QuestionText: q.Text}
		pos[q.ID] = i
	}
	for _, r := range responses {
		if r == nil || r.SurveyID != sv.ID {
			continue
		}
		for qid := range r.Answers {
			if i, ok := pos[qid]; ok {
				out[i].Count++
			}
		}
	}
	return out
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ResponsesByWeekday buckets responses by the short weekday name of their
// submission time in loc. Buckets appear in first-seen order.
func ResponsesByWeekday(responses []*Response, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.UTC
	}
	var bk bucketer
	for _, r := range responses {
		if r == nil || r.SubmittedAt.IsZero() {
			continue
		}
		bk.add(r.SubmittedAt.In(loc).Format("Mon"))
	}
	return bk.out
}

// MonthBucket counts the surveys created in one month. Active is the part
// of Count whose status is currently active.
type MonthBucket struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Active int    `json:"active"`
}

// SurveysByMonth buckets surveys by the short month name of their creation
// time in loc. Buckets appear in first-seen order.
func SurveysByMonth(surveys []*Survey, loc *time.Location) []MonthBucket {
	if loc == nil {
		loc = time.UTC
	}
	out := []MonthBucket{}
	pos := map[string]int{}
	for _, sv := range surveys {
		if sv == nil || sv.CreatedAt.IsZero() {
			continue
		}
		label := sv.CreatedAt.In(loc).Format("Jan")
		i, ok := pos[label]
		if !ok {
			i = len(out)
			pos[label] = i
			out = append(out, MonthBucket{Label: label})
		}
		out[i].Count++
		if sv.Status == StatusActive {
			out[i].Active++
		}
	}
	return out
}

type bucketer struct {
	out []Bucket
	pos map[string]int
}

func (b *bucketer) add(label string) {
	if b.pos == nil {
		b.pos = map[string]int{}
	}
	if i, ok := b.pos[label]; ok {
		b.out[i].Count++
		return
	}
	b.pos[label] = len(b.out)
	b.out = append(b.out, Bucket{Label: label, Count: 1})
}

type StatusCount struct {
	Status SurveyStatus `json:"status"`
	Count  int          `json:"count"`
}

// StatusDistribution counts surveys per status in the fixed order active,
// draft, closed.
func StatusDistribution(surveys []*Survey) []StatusCount {
	out := []StatusCount{{Status: StatusActive}, {Status: StatusDraft}, {Status: StatusClosed}}
	for _, sv := range surveys {
		if sv == nil {
			continue
		}
		for i := range out {
			if out[i].Status == sv.Status {
				out[i].Count++
			}
		}
	}
	return out
}

type CompletionRate struct {
	SurveyID    string  `json:"survey_id"`
	SurveyTitle string  `json:"survey_title"`
	Rate        float64 `json:"rate"`
}

type ResponseDetail struct {
	ResponseID  string    `json:"response_id"`
	Survey      string    `json:"survey"`
	Respondent  string    `json:"respondent"`
	SubmittedAt time.Time `json:"submitted_at"`
	AnswerCount int       `json:"answer_count"`
}

// AnonymousRespondent labels responses without a known user.
const AnonymousRespondent = "Anonymous"

// ResponseDetails lists one row per response. The survey column falls back
// to the survey ID when the survey is unknown, and the respondent column to
// AnonymousRespondent.
func ResponseDetails(surveys []*Survey, responses []*Response, users []*User) []ResponseDetail {
	titles := map[string]string{}
	for _, sv := range surveys {
		if sv != nil {
			if _, ok := titles[sv.ID]; !ok {
				titles[sv.ID] = sv.Title
			}
		}
	}
	names := usernames(users)
	out := make([]ResponseDetail, 0, len(responses))
	for _, r := range responses {
		if r == nil {
			continue
		}
		title, ok := titles[r.SurveyID]
		if !ok {
			title = r.SurveyID
		}
		out = append(out, ResponseDetail{
			ResponseID:  r.ID,
			Survey:      title,
			Respondent:  respondentName(names, r.UserID),
			SubmittedAt: r.SubmittedAt,
			AnswerCount: len(r.Answers),
		})
	}
	return out
}

type Overview struct {
	TotalSurveys       int              `json:"total_surveys"`
	ActiveSurveys      int              `json:"active_surveys"`
	ActivePercent      float64          `json:"active_percent"`
	TotalResponses     int              `json:"total_responses"`
	AverageAnswers     float64          `json:"average_answers"`
	Summaries          []SurveySummary  `json:"summaries"`
	Leaderboard        []SurveySummary  `json:"leaderboard"`
	StatusDistribution []StatusCount    `json:"status_distribution"`
	CompletionRates    []CompletionRate `json:"completion_rates"`
	SurveysByMonth     []MonthBucket    `json:"surveys_by_month"`
	ResponsesByWeekday []Bucket         `json:"responses_by_weekday"`
	Responses          []ResponseDetail `json:"responses"`
}

// BuildOverview assembles the dashboard view from raw data.
func BuildOverview(surveys []*Survey, responses []*Response, users []*User, loc *time.Location) *Overview {
	agg := Aggregate(surveys, responses)
	ov := &Overview{
		TotalSurveys:       len(agg.Summaries),
		TotalResponses:     agg.TotalResponses(),
		Summaries:          agg.Summaries,
		Leaderboard:        Leaderboard(agg.Summaries),
		StatusDistribution: StatusDistribution(surveys),
		SurveysByMonth:     SurveysByMonth(surveys, loc),
		ResponsesByWeekday: ResponsesByWeekday(responses, loc),
		Responses:          ResponseDetails(surveys, responses, users),
	}
	for _, sc := range ov.StatusDistribution {
		if sc.Status == StatusActive {
			ov.ActiveSurveys = sc.Count
		}
	}
	ov.ActivePercent = safeDiv(float64(ov.ActiveSurveys), float64(ov.TotalSurveys)) * 100
	var answers float64
	for _, s := range agg.Summaries {
		answers += s.AverageAnswers * float64(s.TotalResponses)
		ov.CompletionRates = append(ov.CompletionRates, CompletionRate{
			SurveyID:    s.SurveyID,
			SurveyTitle: s.SurveyTitle,
			Rate:        Insight(s.SurveyID, responses).CompletionRate,
		})
	}
	ov.AverageAnswers = safeDiv(answers, float64(ov.TotalResponses))
	return ov
}

func usernames(users []*User) map[string]string {
	out := make(map[string]string, len(users))
	for _, u := range users {
		if u != nil && u.Username != "" {
			out[u.ID] = u.Username
		}
	}
	return out
}

func respondentName(names map[string]string, userID string) string {
	if userID == "" {
		return AnonymousRespondent
	}
	if n, ok := names[userID]; ok {
		return n
	}
	return AnonymousRespondent
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

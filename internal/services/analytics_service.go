package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

type AnalyticsStore interface {
	GetSurvey(ctx context.Context, id string) (*Survey, error)
	ListSurveys(ctx context.Context) ([]*Survey, error)
	ListResponses(ctx context.Context, filter ResponseFilter) ([]*Response, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

// AnalyticsService loads snapshots from the store and runs the pure
// aggregation functions over them on every call.
type AnalyticsService struct {
	store  AnalyticsStore
	logger *slog.Logger
	loc    *time.Location
}

func NewAnalyticsService(store AnalyticsStore, logger *slog.Logger, loc *time.Location) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{store: store, logger: logger, loc: loc}
}

type SurveyAnalytics struct {
	Summary      SurveySummary   `json:"summary"`
	Insight      SurveyInsight   `json:"insight"`
	Distribution []QuestionCount `json:"distribution"`
}

type Activity struct {
	ResponsesByWeekday []Bucket      `json:"responses_by_weekday"`
	SurveysByMonth     []MonthBucket `json:"surveys_by_month"`
}

type snapshot struct {
	surveys   []*Survey
	responses []*Response
	users     []*User
}

func (s *AnalyticsService) load(ctx context.Context, withUsers bool) (*snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.surveys, err = s.store.ListSurveys(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.responses, err = s.store.ListResponses(gctx, ResponseFilter{})
		return err
	})
	if withUsers {
		g.Go(func() (err error) {
			snap.users, err = s.store.ListUsers(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("analytics fetch failed", "error", err)
		return nil, NewDataUnavailableError("analytics data unavailable", err)
	}
	return &snap, nil
}

func (s *AnalyticsService) Overview(ctx context.Context) (*Overview, error) {
	snap, err := s.load(ctx, true)
	if err != nil {
		return nil, err
	}
	return BuildOverview(snap.surveys, snap.responses, snap.users, s.loc), nil
}

// Survey returns the summary, insight and question distribution for one
// survey. The insight's completion rate is relative to all responses.
func (s *AnalyticsService) Survey(ctx context.Context, surveyID string) (*SurveyAnalytics, error) {
	snap, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}
	var sv *Survey
	for _, c := range snap.surveys {
		if c != nil && c.ID == surveyID {
			sv = c
			break
		}
	}
	if sv == nil {
		return nil, ErrSurveyNotFound
	}
	summary, _ := Aggregate(snap.surveys, snap.responses).ByID(surveyID)
	return &SurveyAnalytics{
		Summary:      summary,
		Insight:      Insight(surveyID, snap.responses),
		Distribution: QuestionDistribution(sv, snap.responses),
	}, nil
}

func (s *AnalyticsService) Activity(ctx context.Context) (*Activity, error) {
	snap, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}
	return &Activity{
		ResponsesByWeekday: ResponsesByWeekday(snap.responses, s.loc),
		SurveysByMonth:     SurveysByMonth(snap.surveys, s.loc),
	}, nil
}

// surveyData loads one survey with its responses and the user directory.
func surveyData(ctx context.Context, store AnalyticsStore, surveyID string) (*Survey, []*Response, []*User, error) {
	var (
		sv        *Survey
		responses []*Response
		users     []*User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sv, err = store.GetSurvey(gctx, surveyID)
		return err
	})
	g.Go(func() (err error) {
		responses, err = store.ListResponses(gctx, ResponseFilter{SurveyID: surveyID})
		return err
	})
	g.Go(func() (err error) {
		users, err = store.ListUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, fmt.Errorf("load survey %s: %w", surveyID, err)
	}
	if sv == nil {
		return nil, nil, nil, ErrSurveyNotFound
	}
	return sv, responses, users, nil
}

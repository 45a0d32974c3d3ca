package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// AccessStore is the read side needed to gate survey access.
type AccessStore interface {
	GetSurvey(ctx context.Context, id string) (*Survey, error)
	ListSurveys(ctx context.Context) ([]*Survey, error)
	ListResponses(ctx context.Context, filter ResponseFilter) ([]*Response, error)
	ListGroups(ctx context.Context) ([]*Group, error)
}

const defaultFetchTimeout = 5 * time.Second

type AccessService struct {
	store   AccessStore
	logger  *slog.Logger
	timeout time.Duration
}

func NewAccessService(store AccessStore, logger *slog.Logger, timeout time.Duration) *AccessService {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &AccessService{store: store, logger: logger, timeout: timeout}
}

type AccessCheck struct {
	Decision Decision
	Survey   *Survey
}

// Check fetches the three access sources concurrently and resolves them.
func (s *AccessService) Check(ctx context.Context, userID, surveyID string) AccessCheck {
	in := s.Gather(ctx, userID, surveyID)
	d := Resolve(userID, surveyID, in)
	chk := AccessCheck{Decision: d}
	if d != DecisionSurveyNotFound {
		chk.Survey = in.Survey
	}
	return chk
}

// Gather fetches the survey, the user's responses and all groups in
// parallel under the configured timeout. Each source keeps its own error.
func (s *AccessService) Gather(ctx context.Context, userID, surveyID string) AccessInputs {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var in AccessInputs
	var g errgroup.Group
	g.Go(func() error {
		in.Survey, in.SurveyErr = s.store.GetSurvey(ctx, surveyID)
		return nil
	})
	g.Go(func() error {
		in.Responses, in.ResponsesErr = s.store.ListResponses(ctx, ResponseFilter{UserID: userID})
		return nil
	})
	g.Go(func() error {
		in.Groups, in.GroupsErr = s.store.ListGroups(ctx)
		return nil
	})
	_ = g.Wait()

	for source, err := range map[string]error{
		"survey":    in.SurveyErr,
		"responses": in.ResponsesErr,
		"groups":    in.GroupsErr,
	} {
		if err != nil && !IsNotFound(err) {
			s.logger.Warn("access source fetch failed",
				"survey_id", surveyID, "user_id", userID, "source", source, "error", err)
		}
	}
	return in
}

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentCompleted AssignmentStatus = "completed"
)

type MySurvey struct {
	Survey      *Survey          `json:"survey"`
	Status      AssignmentStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// MySurveys lists the surveys assigned to userID, and the ones the user
// already answered, marking each pending or completed.
func (s *AccessService) MySurveys(ctx context.Context, userID string) ([]MySurvey, error) {
	if userID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		surveys   []*Survey
		responses []*Response
		groups    []*Group
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		surveys, err = s.store.ListSurveys(gctx)
		return err
	})
	g.Go(func() (err error) {
		responses, err = s.store.ListResponses(gctx, ResponseFilter{UserID: userID})
		return err
	})
	g.Go(func() (err error) {
		groups, err = s.store.ListGroups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("my surveys fetch failed", "user_id", userID, "error", err)
		return nil, NewDataUnavailableError("surveys unavailable", fmt.Errorf("list my surveys: %w", err))
	}

	completed := map[string]time.Time{}
	for _, r := range responses {
		if r == nil || r.UserID != userID {
			continue
		}
		if at, ok := completed[r.SurveyID]; !ok || r.SubmittedAt.After(at) {
			completed[r.SurveyID] = r.SubmittedAt
		}
	}
	assigned := AssignedSurveys(userID, groups)

	out := []MySurvey{}
	for _, sv := range surveys {
		if sv == nil {
			continue
		}
		if at, ok := completed[sv.ID]; ok {
			at := at
			out = append(out, MySurvey{Survey: sv, Status: AssignmentCompleted, CompletedAt: &at})
			continue
		}
		if _, ok := assigned[sv.ID]; ok && sv.Status == StatusActive {
			out = append(out, MySurvey{Survey: sv, Status: AssignmentPending})
		}
	}
	return out, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ResponseStore persists accepted submissions and lists stored ones.
type ResponseStore interface {
	AddResponse(ctx context.Context, r *Response) error
	ListResponses(ctx context.Context, filter ResponseFilter) ([]*Response, error)
}

// Gate decides whether a user may submit to a survey.
type Gate interface {
	Check(ctx context.Context, userID, surveyID string) AccessCheck
}

var (
	// ErrNotEligible is returned when the user is not assigned the survey.
	ErrNotEligible = &ServiceError{Code: ErrorForbidden, Message: "survey not assigned to user"}
	// ErrAlreadyCompleted is returned when the user already answered the survey.
	ErrAlreadyCompleted = &ServiceError{Code: ErrorConflict, Message: "survey already completed"}
	// ErrSurveyNotOpen is returned when submitting to a draft or closed survey.
	ErrSurveyNotOpen = &ServiceError{Code: ErrorConflict, Message: "survey is not accepting responses"}
)

type SubmitRequest struct {
	SurveyID       string
	UserID         string
	Answers        map[string]string
	CompletionTime *float64
}

// ResponseService validates and stores survey submissions. Only users the
// access gate resolves as eligible may submit.
type ResponseService struct {
	store       ResponseStore
	gate        Gate
	now         func() time.Time
	idGenerator func() string
}

func NewResponseService(store ResponseStore, gate Gate) *ResponseService {
	return &ResponseService{
		store:       store,
		gate:        gate,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: func() string { return shortID(16) },
	}
}

func (s *ResponseService) Submit(ctx context.Context, req SubmitRequest) (*Response, error) {
	if s.store == nil || s.gate == nil {
		return nil, errors.New("response service is not configured")
	}
	if req.UserID == "" {
		return nil, NewUnauthorizedError("unauthorized")
	}
	chk := s.gate.Check(ctx, req.UserID, req.SurveyID)
	switch chk.Decision {
	case DecisionEligible:
	case DecisionSurveyNotFound:
		return nil, ErrSurveyNotFound
	case DecisionDataFetchError:
		return nil, NewDataUnavailableError("eligibility could not be determined", nil)
	case DecisionAlreadyCompleted:
		return nil, ErrAlreadyCompleted
	default:
		return nil, ErrNotEligible
	}
	sv := chk.Survey
	if sv.Status != StatusActive {
		return nil, ErrSurveyNotOpen
	}
	answers, err := ValidateAnswers(sv, req.Answers)
	if err != nil {
		return nil, err
	}
	if req.CompletionTime != nil && (*req.CompletionTime < 0 || math.IsNaN(*req.CompletionTime) || math.IsInf(*req.CompletionTime, 0)) {
		return nil, NewInvalidError("completion_time must be a non-negative number of seconds")
	}
	r := &Response{
		ID:             s.idGenerator(),
		SurveyID:       sv.ID,
		UserID:         req.UserID,
		Answers:        answers,
		SubmittedAt:    s.now(),
		CompletionTime: req.CompletionTime,
	}
	if err := s.store.AddResponse(ctx, r); err != nil {
		return nil, fmt.Errorf("store response: %w", err)
	}
	return r, nil
}

func (s *ResponseService) List(ctx context.Context, actor Actor, filter ResponseFilter) ([]*Response, error) {
	if !actor.CanManage() {
		return nil, NewForbiddenError("forbidden")
	}
	return s.store.ListResponses(ctx, filter)
}

// ValidateAnswers checks answers against the survey's questions and returns
// the trimmed answers keyed by known question IDs. Unknown IDs and blank
// answers are dropped.
func ValidateAnswers(sv *Survey, in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for _, q := range sv.Questions {
		a := strings.TrimSpace(in[q.ID])
		if a == "" {
			if q.Required {
				return nil, NewInvalidError(fmt.Sprintf("%s: answer required", q.ID))
			}
			continue
		}
		switch q.Type {
		case QuestionMultipleChoice:
			if !containsString(q.Options, a) {
				return nil, NewInvalidError(fmt.Sprintf("%s: answer is not one of the options", q.ID))
			}
		case QuestionRatingScale:
			v, err := strconv.Atoi(a)
			if err != nil {
				return nil, NewInvalidError(fmt.Sprintf("%s: rating must be a whole number", q.ID))
			}
			if (q.Min != nil && v < *q.Min) || (q.Max != nil && v > *q.Max) {
				return nil, NewInvalidError(fmt.Sprintf("%s: rating out of range", q.ID))
			}
		}
		out[q.ID] = a
	}
	return out, nil
}

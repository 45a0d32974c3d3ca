package services

// Decision is the outcome of checking whether a user may take a survey.
type Decision string

const (
	DecisionSurveyNotFound   Decision = "survey_not_found"
	DecisionDataFetchError   Decision = "data_fetch_error"
	DecisionAlreadyCompleted Decision = "already_completed"
	DecisionNotAssigned      Decision = "not_assigned"
	DecisionEligible         Decision = "eligible"
)

// Retryable reports whether the decision stems from an infrastructure fault
// rather than a business rule.
func (d Decision) Retryable() bool { return d == DecisionDataFetchError }

// AccessInputs is the materialized tuple consumed by Resolve. Every source
// carries its own error so a partial fetch is distinguishable from an
// empty result.
type AccessInputs struct {
	Survey    *Survey
	SurveyErr error

	Responses    []*Response
	ResponsesErr error

	Groups    []*Group
	GroupsErr error
}

// Resolve decides whether userID may take surveyID.
//
// Precedence is fixed: survey lookup, then the response and group sources,
// then a prior response by the same user, then group assignment. Any
// failed survey lookup, including a nil Survey, resolves to
// DecisionSurveyNotFound whatever the other sources hold. Identifiers are
// compared exactly.
//
// A transient SurveyErr (timeout, backend down) is therefore reported as
// not found rather than data_fetch_error, so the client is sent to the
// survey list instead of retrying. The cause is not lost: AccessService
// logs every survey source error other than not-found at Warn level.
func Resolve(userID, surveyID string, in AccessInputs) Decision {
	if in.SurveyErr != nil || in.Survey == nil || in.Survey.ID != surveyID {
		return DecisionSurveyNotFound
	}
	if in.ResponsesErr != nil || in.GroupsErr != nil {
		return DecisionDataFetchError
	}
	if hasCompleted(userID, surveyID, in.Responses) {
		return DecisionAlreadyCompleted
	}
	if _, ok := AssignedSurveys(userID, in.Groups)[surveyID]; ok {
		return DecisionEligible
	}
	return DecisionNotAssigned
}

func hasCompleted(userID, surveyID string, responses []*Response) bool {
	if userID == "" {
		return false
	}
	for _, r := range responses {
		if r != nil && r.SurveyID == surveyID && r.UserID == userID {
			return true
		}
	}
	return false
}

// AssignedSurveys returns the union of assigned survey IDs across every
// group that lists userID as a member.
func AssignedSurveys(userID string, groups []*Group) map[string]struct{} {
	out := map[string]struct{}{}
	if userID == "" {
		return out
	}
	for _, g := range groups {
		if g == nil || !g.HasMember(userID) {
			continue
		}
		for _, sid := range g.AssignedSurveys {
			out[sid] = struct{}{}
		}
	}
	return out
}

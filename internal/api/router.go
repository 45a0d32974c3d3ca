package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soaringjerry/surveydesk/internal/middleware"
	"github.com/soaringjerry/surveydesk/internal/services"
	"github.com/soaringjerry/surveydesk/internal/utils"
)

type Options struct {
	Auth         *middleware.Auth
	Logger       *slog.Logger
	FetchTimeout time.Duration
	Location     *time.Location
	ExportLimit  middleware.RateLimitConfig
}

// Router serves the /api tree. Every handler builds on the services layer
// over a single Store.
type Router struct {
	auth   *middleware.Auth
	logger *slog.Logger

	access    *services.AccessService
	analytics *services.AnalyticsService
	export    *services.ExportService
	responses *services.ResponseService
	surveys   *services.SurveyService
	groups    *services.GroupService
	users     *services.UserService
	templates *services.TemplateService
	audit     *services.AuditService

	exportLimit func(http.Handler) http.Handler
}

func NewRouter(store Store, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	access := services.NewAccessService(store, logger, opts.FetchTimeout)
	return &Router{
		auth:        opts.Auth,
		logger:      logger,
		access:      access,
		analytics:   services.NewAnalyticsService(store, logger, opts.Location),
		export:      services.NewExportService(store),
		responses:   services.NewResponseService(store, access),
		surveys:     services.NewSurveyService(store),
		groups:      services.NewGroupService(store),
		users:       services.NewUserService(store),
		templates:   services.NewTemplateService(store),
		audit:       services.NewAuditService(store),
		exportLimit: middleware.RateLimiter(opts.ExportLimit),
	}
}

// Routes returns the handler to mount under /api.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	if rt.auth != nil {
		r.Use(rt.auth.WithAuth)
	}
	r.Use(middleware.RequireAuth)

	manage := middleware.RequireRole(services.RoleAdmin, services.RoleCreator)

	r.Route("/surveys", func(r chi.Router) {
		r.With(manage).Get("/", rt.handleListSurveys)
		r.With(manage).Post("/", rt.handleCreateSurvey)
		r.Route("/{id}", func(r chi.Router) {
			r.With(manage).Get("/", rt.handleGetSurvey)
			r.With(manage).Patch("/", rt.handleUpdateSurvey)
			r.With(manage).Delete("/", rt.handleDeleteSurvey)
			r.Get("/access", rt.handleAccess)
			r.Post("/responses", rt.handleSubmit)
			r.With(manage, rt.exportLimit).Get("/export", rt.handleExport)
		})
	})

	r.With(manage).Get("/responses", rt.handleListResponses)
	r.Get("/me/surveys", rt.handleMySurveys)

	r.Route("/groups", func(r chi.Router) {
		r.Use(manage)
		r.Get("/", rt.handleListGroups)
		r.Post("/", rt.handleCreateGroup)
		r.Post("/{id}/members", rt.handleAddMember)
		r.Delete("/{id}/members/{userID}", rt.handleRemoveMember)
		r.Post("/{id}/surveys", rt.handleAssignSurvey)
		r.Delete("/{id}/surveys/{surveyID}", rt.handleUnassignSurvey)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Use(manage)
		r.Get("/", rt.handleListTemplates)
		r.Post("/", rt.handleCreateTemplate)
		r.Get("/{id}", rt.handleGetTemplate)
		r.Patch("/{id}", rt.handleUpdateTemplate)
		r.Delete("/{id}", rt.handleDeleteTemplate)
		r.Post("/{id}/surveys", rt.handleInstantiateTemplate)
	})

	r.With(middleware.RequireRole(services.RoleAdmin)).Get("/audit", rt.handleAudit)

	r.Route("/users", func(r chi.Router) {
		r.Use(manage)
		r.Get("/", rt.handleListUsers)
		r.Patch("/{id}", rt.handleChangeRole)
	})

	r.Route("/analytics", func(r chi.Router) {
		r.Use(manage)
		r.Get("/overview", rt.handleOverview)
		r.Get("/surveys/{id}", rt.handleSurveyAnalytics)
		r.Get("/activity", rt.handleActivity)
	})
	return r
}

func (rt *Router) fail(w http.ResponseWriter, err error) {
	writeServiceError(w, rt.logger, err)
}

// ---- surveys ----

func (rt *Router) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	list, err := rt.surveys.List(r.Context())
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"surveys": list})
}

func (rt *Router) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	sv, err := rt.surveys.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	var in services.SurveyInput
	if err := decodeJSON(w, r, &in); err != nil {
		rt.fail(w, err)
		return
	}
	sv, err := rt.surveys.Create(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sv)
}

func (rt *Router) handleUpdateSurvey(w http.ResponseWriter, r *http.Request) {
	var in services.SurveyInput
	if err := decodeJSON(w, r, &in); err != nil {
		rt.fail(w, err)
		return
	}
	sv, err := rt.surveys.Update(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) handleDeleteSurvey(w http.ResponseWriter, r *http.Request) {
	if err := rt.surveys.Delete(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		rt.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- access & responses ----

type accessView struct {
	Decision  services.Decision `json:"decision"`
	Redirect  string            `json:"redirect,omitempty"`
	Retryable bool              `json:"retryable"`
	Message   string            `json:"message"`
	Survey    *services.Survey  `json:"survey,omitempty"`
}

// redirectFor names the page the client should land on for a decision.
// A data fetch error keeps the user in place so they can retry.
func redirectFor(d services.Decision, surveyID string) string {
	switch d {
	case services.DecisionEligible:
		return "/user/surveys/" + surveyID
	case services.DecisionSurveyNotFound:
		return "/user/surveys"
	case services.DecisionAlreadyCompleted, services.DecisionNotAssigned:
		return "/user/survey-access"
	default:
		return ""
	}
}

func (rt *Router) handleAccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := middleware.ActorFromContext(r.Context())
	check := rt.access.Check(r.Context(), actor.UserID, id)

	view := accessView{
		Decision:  check.Decision,
		Redirect:  redirectFor(check.Decision, id),
		Retryable: check.Decision.Retryable(),
		Message:   utils.T(middleware.LocaleFromContext(r.Context()), "decision."+string(check.Decision)),
	}
	if check.Decision == services.DecisionEligible {
		view.Survey = check.Survey
	}
	status := http.StatusOK
	if view.Retryable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, view)
}

func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answers        map[string]string `json:"answers"`
		CompletionTime *float64          `json:"completion_time"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.fail(w, err)
		return
	}
	resp, err := rt.responses.Submit(r.Context(), services.SubmitRequest{
		SurveyID:       chi.URLParam(r, "id"),
		UserID:         middleware.ActorFromContext(r.Context()).UserID,
		Answers:        body.Answers,
		CompletionTime: body.CompletionTime,
	})
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (rt *Router) handleListResponses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := rt.responses.List(r.Context(), middleware.ActorFromContext(r.Context()), services.ResponseFilter{
		SurveyID: q.Get("survey_id"),
		UserID:   q.Get("user_id"),
	})
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": list})
}

func (rt *Router) handleMySurveys(w http.ResponseWriter, r *http.Request) {
	list, err := rt.access.MySurveys(r.Context(), middleware.ActorFromContext(r.Context()).UserID)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"surveys": list})
}

// ---- groups ----

func (rt *Router) handleListGroups(w http.ResponseWriter, r *http.Request) {
	list, err := rt.groups.List(r.Context())
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": list})
}

func (rt *Router) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.fail(w, err)
		return
	}
	g, err := rt.groups.Create(r.Context(), middleware.ActorFromContext(r.Context()), body.Name, body.Description)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

type groupOp func(r *http.Request, actor services.Actor, groupID string) (*services.Group, error)

// groupHandler runs op against the {id} group and writes the updated group.
func (rt *Router) groupHandler(op groupOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := op(r, middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			rt.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func (rt *Router) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.fail(w, err)
		return
	}
	rt.groupHandler(func(r *http.Request, actor services.Actor, id string) (*services.Group, error) {
		return rt.groups.AddMember(r.Context(), actor, id, body.UserID)
	})(w, r)
}

func (rt *Router) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	rt.groupHandler(func(r *http.Request, actor services.Actor, id string) (*services.Group, error) {
		return rt.groups.RemoveMember(r.Context(), actor, id, chi.URLParam(r, "userID"))
	})(w, r)
}

func (rt *Router) handleAssignSurvey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SurveyID string `json:"survey_id"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.fail(w, err)
		return
	}
	rt.groupHandler(func(r *http.Request, actor services.Actor, id string) (*services.Group, error) {
		return rt.groups.AssignSurvey(r.Context(), actor, id, body.SurveyID)
	})(w, r)
}

func (rt *Router) handleUnassignSurvey(w http.ResponseWriter, r *http.Request) {
	rt.groupHandler(func(r *http.Request, actor services.Actor, id string) (*services.Group, error) {
		return rt.groups.UnassignSurvey(r.Context(), actor, id, chi.URLParam(r, "surveyID"))
	})(w, r)
}

// ---- templates ----

func (rt *Router) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := rt.templates.List(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": list})
}

func (rt *Router) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := rt.templates.Get(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (rt *Router) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in services.TemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		rt.fail(w, err)
		return
	}
	t, err := rt.templates.Create(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (rt *Router) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in services.TemplateInput
	if err := decodeJSON(w, r, &in); err != nil {
		rt.fail(w, err)
		return
	}
	t, err := rt.templates.Update(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (rt *Router) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := rt.templates.Delete(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		rt.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInstantiateTemplate creates a draft survey from the template. The
// body is optional and may only carry a title.
func (rt *Router) handleInstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			rt.fail(w, err)
			return
		}
	}
	sv, err := rt.templates.Instantiate(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), body.Title)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sv)
}

// ---- audit ----

func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			rt.fail(w, services.NewMalformedInputError("invalid limit"))
			return
		}
		limit = n
	}
	entries, err := rt.audit.Recent(r.Context(), middleware.ActorFromContext(r.Context()), limit)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ---- users ----

func (rt *Router) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := rt.users.List(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

func (rt *Router) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role services.Role `json:"role"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.fail(w, err)
		return
	}
	u, err := rt.users.ChangeRole(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), body.Role)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ---- analytics & export ----

type bucketView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type monthView struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Active int    `json:"active"`
}

type statusView struct {
	Status services.SurveyStatus `json:"status"`
	Label  string                `json:"label"`
	Count  int                   `json:"count"`
}

func localizeBuckets(locale, prefix string, in []services.Bucket) []bucketView {
	out := make([]bucketView, 0, len(in))
	for _, b := range in {
		out = append(out, bucketView{Key: b.Label, Label: utils.T(locale, prefix+b.Label), Count: b.Count})
	}
	return out
}

func localizeMonths(locale string, in []services.MonthBucket) []monthView {
	out := make([]monthView, 0, len(in))
	for _, b := range in {
		out = append(out, monthView{Key: b.Label, Label: utils.T(locale, "month."+b.Label), Count: b.Count, Active: b.Active})
	}
	return out
}

// overviewView replaces the chart series of an Overview with localized ones.
type overviewView struct {
	*services.Overview
	StatusDistribution []statusView `json:"status_distribution"`
	SurveysByMonth     []monthView  `json:"surveys_by_month"`
	ResponsesByWeekday []bucketView `json:"responses_by_weekday"`
}

func (rt *Router) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := rt.analytics.Overview(r.Context())
	if err != nil {
		rt.fail(w, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	view := overviewView{
		Overview:           ov,
		StatusDistribution: make([]statusView, 0, len(ov.StatusDistribution)),
		SurveysByMonth:     localizeMonths(locale, ov.SurveysByMonth),
		ResponsesByWeekday: localizeBuckets(locale, "weekday.", ov.ResponsesByWeekday),
	}
	for _, sc := range ov.StatusDistribution {
		view.StatusDistribution = append(view.StatusDistribution, statusView{
			Status: sc.Status,
			Label:  utils.T(locale, "status."+string(sc.Status)),
			Count:  sc.Count,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) handleSurveyAnalytics(w http.ResponseWriter, r *http.Request) {
	sa, err := rt.analytics.Survey(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sa)
}

func (rt *Router) handleActivity(w http.ResponseWriter, r *http.Request) {
	act, err := rt.analytics.Activity(r.Context())
	if err != nil {
		rt.fail(w, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"responses_by_weekday": localizeBuckets(locale, "weekday.", act.ResponsesByWeekday),
		"surveys_by_month":     localizeMonths(locale, act.SurveysByMonth),
	})
}

func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := rt.export.Export(r.Context(), services.ExportParams{
		SurveyID: chi.URLParam(r, "id"),
		Format:   services.ExportFormat(r.URL.Query().Get("format")),
	})
	if err != nil {
		rt.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

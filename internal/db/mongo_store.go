package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/soaringjerry/surveydesk/internal/api"
	"github.com/soaringjerry/surveydesk/internal/services"
)

const (
	colSurveys   = "surveys"
	colResponses = "responses"
	colGroups    = "groups"
	colUsers     = "users"
	colTemplates = "templates"
	colAudit     = "audit_log"
)

// MongoStore keeps one collection per record kind. Documents mirror the
// service types with the record ID stored as _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ api.Store = (*MongoStore)(nil)

// OpenMongo connects to uri, pings the primary and ensures the indexes the
// listings rely on.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	st := &MongoStore{client: client, db: client.Database(database)}
	if err := st.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return st, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(colResponses).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "survey_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create response indexes: %w", err)
	}
	return nil
}

type surveyDoc struct {
	ID             string        `bson:"_id"`
	Title          string        `bson:"title"`
	Description    string        `bson:"description"`
	CreatorID      string        `bson:"creator_id"`
	Status         string        `bson:"status"`
	Questions      []questionDoc `bson:"questions"`
	AssignedGroups []string      `bson:"assigned_groups"`
	CreatedAt      time.Time     `bson:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at"`
}

type questionDoc struct {
	ID       string   `bson:"id"`
	Type     string   `bson:"type"`
	Text     string   `bson:"text"`
	Required bool     `bson:"required"`
	Options  []string `bson:"options,omitempty"`
	Min      *int     `bson:"min,omitempty"`
	Max      *int     `bson:"max,omitempty"`
}

func toSurveyDoc(sv *services.Survey) surveyDoc {
	d := surveyDoc{
		ID: sv.ID, Title: sv.Title, Description: sv.Description, CreatorID: sv.CreatorID,
		Status: string(sv.Status), Questions: make([]questionDoc, 0, len(sv.Questions)),
		AssignedGroups: append([]string{}, sv.AssignedGroups...),
		CreatedAt: sv.CreatedAt.UTC(), UpdatedAt: sv.UpdatedAt.UTC(),
	}
	for _, q := range sv.Questions {
		d.Questions = append(d.Questions, questionDoc{
			ID: q.ID, Type: string(q.Type), Text: q.Text, Required: q.Required,
			Options: q.Options, Min: q.Min, Max: q.Max,
		})
	}
	return d
}

func (d surveyDoc) survey() *services.Survey {
	sv := &services.Survey{
		ID: d.ID, Title: d.Title, Description: d.Description, CreatorID: d.CreatorID,
		Status: services.SurveyStatus(d.Status), Questions: make([]services.Question, 0, len(d.Questions)),
		AssignedGroups: d.AssignedGroups, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	for _, q := range d.Questions {
		sv.Questions = append(sv.Questions, services.Question{
			ID: q.ID, Type: services.QuestionType(q.Type), Text: q.Text, Required: q.Required,
			Options: q.Options, Min: q.Min, Max: q.Max,
		})
	}
	return sv
}

type responseDoc struct {
	ID             string            `bson:"_id"`
	SurveyID       string            `bson:"survey_id"`
	UserID         string            `bson:"user_id"`
	Answers        map[string]string `bson:"answers"`
	SubmittedAt    time.Time         `bson:"submitted_at"`
	CompletionTime *float64          `bson:"completion_time,omitempty"`
}

type groupDoc struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Description     string    `bson:"description"`
	Members         []string  `bson:"members"`
	AssignedSurveys []string  `bson:"assigned_surveys"`
	CreatedAt       time.Time `bson:"created_at"`
}

type userDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Email     string    `bson:"email"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

type auditDoc struct {
	Time   time.Time `bson:"time"`
	Actor  string    `bson:"actor"`
	Action string    `bson:"action"`
	Target string    `bson:"target"`
	Note   string    `bson:"note"`
}

// byInsertion sorts on creation time with _id as the tie breaker.
func byInsertion(field string) *options.FindOptionsBuilder {
	return options.Find().SetSort(bson.D{{Key: field, Value: 1}, {Key: "_id", Value: 1}})
}

func findOne[T any](ctx context.Context, col *mongo.Collection, id string) (*T, error) {
	var doc T
	err := col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts *options.FindOptionsBuilder) ([]T, error) {
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	docs := []T{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoStore) replace(ctx context.Context, col, id string, doc any, upsert bool) (bool, error) {
	res, err := s.db.Collection(col).ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(upsert))
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0 || res.UpsertedCount > 0, nil
}

func (s *MongoStore) CreateSurvey(ctx context.Context, sv *services.Survey) error {
	if _, err := s.db.Collection(colSurveys).InsertOne(ctx, toSurveyDoc(sv)); err != nil {
		return fmt.Errorf("insert survey %s: %w", sv.ID, err)
	}
	return nil
}

// UpdateSurvey sets every field except assigned_groups, which only the
// group edits touch.
func (s *MongoStore) UpdateSurvey(ctx context.Context, sv *services.Survey) (bool, error) {
	d := toSurveyDoc(sv)
	set := bson.D{
		{Key: "title", Value: d.Title},
		{Key: "description", Value: d.Description},
		{Key: "creator_id", Value: d.CreatorID},
		{Key: "status", Value: d.Status},
		{Key: "questions", Value: d.Questions},
		{Key: "created_at", Value: d.CreatedAt},
		{Key: "updated_at", Value: d.UpdatedAt},
	}
	res, err := s.db.Collection(colSurveys).UpdateOne(ctx, bson.D{{Key: "_id", Value: sv.ID}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, fmt.Errorf("update survey %s: %w", sv.ID, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteSurvey(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Collection(colSurveys).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, fmt.Errorf("delete survey %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) GetSurvey(ctx context.Context, id string) (*services.Survey, error) {
	doc, err := findOne[surveyDoc](ctx, s.db.Collection(colSurveys), id)
	if err != nil {
		return nil, fmt.Errorf("get survey %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.survey(), nil
}

func (s *MongoStore) ListSurveys(ctx context.Context) ([]*services.Survey, error) {
	docs, err := findAll[surveyDoc](ctx, s.db.Collection(colSurveys), bson.D{}, byInsertion("created_at"))
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	out := make([]*services.Survey, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.survey())
	}
	return out, nil
}

func toResponseDoc(r *services.Response) responseDoc {
	doc := responseDoc{
		ID: r.ID, SurveyID: r.SurveyID, UserID: r.UserID, Answers: r.Answers,
		SubmittedAt: r.SubmittedAt.UTC(), CompletionTime: r.CompletionTime,
	}
	if doc.Answers == nil {
		doc.Answers = map[string]string{}
	}
	return doc
}

func (s *MongoStore) AddResponse(ctx context.Context, r *services.Response) error {
	if _, err := s.db.Collection(colResponses).InsertOne(ctx, toResponseDoc(r)); err != nil {
		return fmt.Errorf("insert response %s: %w", r.ID, err)
	}
	return nil
}

func (s *MongoStore) PutResponse(ctx context.Context, r *services.Response) error {
	if _, err := s.replace(ctx, colResponses, r.ID, toResponseDoc(r), true); err != nil {
		return fmt.Errorf("put response %s: %w", r.ID, err)
	}
	return nil
}

func (s *MongoStore) ListResponses(ctx context.Context, filter services.ResponseFilter) ([]*services.Response, error) {
	q := bson.D{}
	if filter.SurveyID != "" {
		q = append(q, bson.E{Key: "survey_id", Value: filter.SurveyID})
	}
	if filter.UserID != "" {
		q = append(q, bson.E{Key: "user_id", Value: filter.UserID})
	}
	docs, err := findAll[responseDoc](ctx, s.db.Collection(colResponses), q, byInsertion("submitted_at"))
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]*services.Response, 0, len(docs))
	for _, d := range docs {
		out = append(out, &services.Response{
			ID: d.ID, SurveyID: d.SurveyID, UserID: d.UserID, Answers: d.Answers,
			SubmittedAt: d.SubmittedAt, CompletionTime: d.CompletionTime,
		})
	}
	return out, nil
}

func toGroupDoc(g *services.Group) groupDoc {
	return groupDoc{
		ID: g.ID, Name: g.Name, Description: g.Description, CreatedAt: g.CreatedAt.UTC(),
		Members: append([]string{}, g.Members...), AssignedSurveys: append([]string{}, g.AssignedSurveys...),
	}
}

func (d groupDoc) group() *services.Group {
	return &services.Group{
		ID: d.ID, Name: d.Name, Description: d.Description,
		Members: d.Members, AssignedSurveys: d.AssignedSurveys, CreatedAt: d.CreatedAt,
	}
}

func (s *MongoStore) CreateGroup(ctx context.Context, g *services.Group) error {
	if _, err := s.db.Collection(colGroups).InsertOne(ctx, toGroupDoc(g)); err != nil {
		return fmt.Errorf("insert group %s: %w", g.ID, err)
	}
	return nil
}

func (s *MongoStore) UpdateGroup(ctx context.Context, g *services.Group) (bool, error) {
	ok, err := s.replace(ctx, colGroups, g.ID, toGroupDoc(g), false)
	if err != nil {
		return false, fmt.Errorf("update group %s: %w", g.ID, err)
	}
	return ok, nil
}

func (s *MongoStore) GetGroup(ctx context.Context, id string) (*services.Group, error) {
	doc, err := findOne[groupDoc](ctx, s.db.Collection(colGroups), id)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.group(), nil
}

func (s *MongoStore) ListGroups(ctx context.Context) ([]*services.Group, error) {
	docs, err := findAll[groupDoc](ctx, s.db.Collection(colGroups), bson.D{}, byInsertion("created_at"))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	out := make([]*services.Group, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.group())
	}
	return out, nil
}

// editGroup applies $addToSet or $pull to one array of a group. The filter
// only matches when the edit would change the array, so a miss means the
// group is absent or already in the wanted state.
func (s *MongoStore) editGroup(ctx context.Context, groupID, field, value string, add bool) (*services.Group, bool, error) {
	filter := bson.D{{Key: "_id", Value: groupID}}
	op := "$pull"
	if add {
		op = "$addToSet"
		filter = append(filter, bson.E{Key: field, Value: bson.D{{Key: "$ne", Value: value}}})
	} else {
		filter = append(filter, bson.E{Key: field, Value: value})
	}
	var doc groupDoc
	err := s.db.Collection(colGroups).FindOneAndUpdate(ctx, filter,
		bson.D{{Key: op, Value: bson.D{{Key: field, Value: value}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.group(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("edit group %s %s: %w", groupID, field, err)
	}
	cur, err := findOne[groupDoc](ctx, s.db.Collection(colGroups), groupID)
	if err != nil || cur == nil {
		return nil, false, err
	}
	return cur.group(), false, nil
}

// mirrorAssignment keeps the survey's assigned_groups in step with a group
// edit. A missing survey is not an error.
func (s *MongoStore) mirrorAssignment(ctx context.Context, surveyID, groupID string, add bool) error {
	op := "$pull"
	if add {
		op = "$addToSet"
	}
	_, err := s.db.Collection(colSurveys).UpdateOne(ctx, bson.D{{Key: "_id", Value: surveyID}},
		bson.D{{Key: op, Value: bson.D{{Key: "assigned_groups", Value: groupID}}}})
	if err != nil {
		return fmt.Errorf("mirror assignment on survey %s: %w", surveyID, err)
	}
	return nil
}

func (s *MongoStore) AddGroupMember(ctx context.Context, groupID, userID string) (*services.Group, bool, error) {
	return s.editGroup(ctx, groupID, "members", userID, true)
}

func (s *MongoStore) RemoveGroupMember(ctx context.Context, groupID, userID string) (*services.Group, bool, error) {
	return s.editGroup(ctx, groupID, "members", userID, false)
}

func (s *MongoStore) AssignGroupSurvey(ctx context.Context, groupID, surveyID string) (*services.Group, bool, error) {
	g, changed, err := s.editGroup(ctx, groupID, "assigned_surveys", surveyID, true)
	if err != nil || g == nil {
		return g, changed, err
	}
	return g, changed, s.mirrorAssignment(ctx, surveyID, groupID, true)
}

func (s *MongoStore) UnassignGroupSurvey(ctx context.Context, groupID, surveyID string) (*services.Group, bool, error) {
	g, changed, err := s.editGroup(ctx, groupID, "assigned_surveys", surveyID, false)
	if err != nil || g == nil {
		return g, changed, err
	}
	return g, changed, s.mirrorAssignment(ctx, surveyID, groupID, false)
}

type templateDoc struct {
	ID          string        `bson:"_id"`
	Name        string        `bson:"name"`
	Description string        `bson:"description"`
	CreatorID   string        `bson:"creator_id"`
	Questions   []questionDoc `bson:"questions"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}

func toTemplateDoc(t *services.Template) templateDoc {
	sd := toSurveyDoc(&services.Survey{Questions: t.Questions})
	return templateDoc{
		ID: t.ID, Name: t.Name, Description: t.Description, CreatorID: t.CreatorID,
		Questions: sd.Questions, CreatedAt: t.CreatedAt.UTC(), UpdatedAt: t.UpdatedAt.UTC(),
	}
}

func (d templateDoc) template() *services.Template {
	qs := surveyDoc{Questions: d.Questions}.survey().Questions
	return &services.Template{
		ID: d.ID, Name: d.Name, Description: d.Description, CreatorID: d.CreatorID,
		Questions: qs, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (s *MongoStore) CreateTemplate(ctx context.Context, t *services.Template) error {
	if _, err := s.db.Collection(colTemplates).InsertOne(ctx, toTemplateDoc(t)); err != nil {
		return fmt.Errorf("insert template %s: %w", t.ID, err)
	}
	return nil
}

func (s *MongoStore) UpdateTemplate(ctx context.Context, t *services.Template) (bool, error) {
	ok, err := s.replace(ctx, colTemplates, t.ID, toTemplateDoc(t), false)
	if err != nil {
		return false, fmt.Errorf("update template %s: %w", t.ID, err)
	}
	return ok, nil
}

func (s *MongoStore) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Collection(colTemplates).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, fmt.Errorf("delete template %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) GetTemplate(ctx context.Context, id string) (*services.Template, error) {
	doc, err := findOne[templateDoc](ctx, s.db.Collection(colTemplates), id)
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.template(), nil
}

func (s *MongoStore) ListTemplates(ctx context.Context) ([]*services.Template, error) {
	docs, err := findAll[templateDoc](ctx, s.db.Collection(colTemplates), bson.D{}, byInsertion("created_at"))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]*services.Template, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.template())
	}
	return out, nil
}

func (s *MongoStore) UpsertUser(ctx context.Context, u *services.User) error {
	doc := userDoc{ID: u.ID, Username: u.Username, Email: u.Email, Role: string(u.Role), CreatedAt: u.CreatedAt.UTC()}
	if _, err := s.replace(ctx, colUsers, u.ID, doc, true); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (d userDoc) user() *services.User {
	return &services.User{ID: d.ID, Username: d.Username, Email: d.Email, Role: services.Role(d.Role), CreatedAt: d.CreatedAt}
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*services.User, error) {
	doc, err := findOne[userDoc](ctx, s.db.Collection(colUsers), id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.user(), nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]*services.User, error) {
	docs, err := findAll[userDoc](ctx, s.db.Collection(colUsers), bson.D{}, byInsertion("created_at"))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*services.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.user())
	}
	return out, nil
}

func (s *MongoStore) AddAudit(ctx context.Context, e services.AuditEntry) error {
	doc := auditDoc{Time: e.Time.UTC(), Actor: e.Actor, Action: e.Action, Target: e.Target, Note: e.Note}
	if _, err := s.db.Collection(colAudit).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAudit(ctx context.Context) ([]services.AuditEntry, error) {
	docs, err := findAll[auditDoc](ctx, s.db.Collection(colAudit), bson.D{}, byInsertion("time"))
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	out := make([]services.AuditEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, services.AuditEntry{Time: d.Time, Actor: d.Actor, Action: d.Action, Target: d.Target, Note: d.Note})
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

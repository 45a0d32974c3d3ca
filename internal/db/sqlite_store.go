package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/surveydesk/internal/api"
	"github.com/soaringjerry/surveydesk/internal/services"
)

const timeLayout = time.RFC3339Nano

type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	return &SQLiteStore{db: db}, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ---- surveys ----

const surveyColumns = `id, title, description, creator_id, status, questions, assigned_groups, created_at, updated_at`

func surveyArgs(sv *services.Survey) ([]any, error) {
	questions := sv.Questions
	if questions == nil {
		questions = []services.Question{}
	}
	qs, err := encodeJSON(questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	groups := sv.AssignedGroups
	if groups == nil {
		groups = []string{}
	}
	gs, err := encodeJSON(groups)
	if err != nil {
		return nil, fmt.Errorf("encode assigned groups: %w", err)
	}
	return []any{sv.ID, sv.Title, sv.Description, sv.CreatorID, string(sv.Status), qs, gs,
		formatTime(sv.CreatedAt), formatTime(sv.UpdatedAt)}, nil
}

func scanSurvey(row scanner) (*services.Survey, error) {
	var (
		sv                               services.Survey
		status, qs, gs, created, updated string
	)
	if err := row.Scan(&sv.ID, &sv.Title, &sv.Description, &sv.CreatorID, &status, &qs, &gs, &created, &updated); err != nil {
		return nil, err
	}
	sv.Status = services.SurveyStatus(status)
	if err := decodeJSON(qs, &sv.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of %s: %w", sv.ID, err)
	}
	if err := decodeJSON(gs, &sv.AssignedGroups); err != nil {
		return nil, fmt.Errorf("decode assigned groups of %s: %w", sv.ID, err)
	}
	var err error
	if sv.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", sv.ID, err)
	}
	if sv.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", sv.ID, err)
	}
	return &sv, nil
}

func (s *SQLiteStore) CreateSurvey(ctx context.Context, sv *services.Survey) error {
	args, err := surveyArgs(sv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO surveys (`+surveyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert survey %s: %w", sv.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSurvey(ctx context.Context, sv *services.Survey) (bool, error) {
	args, err := surveyArgs(sv)
	if err != nil {
		return false, err
	}
	// assigned_groups (args[6]) is only written by the group edits
	res, err := s.db.ExecContext(ctx, `UPDATE surveys SET title = ?, description = ?, creator_id = ?, status = ?,
		questions = ?, created_at = ?, updated_at = ? WHERE id = ?`,
		args[1], args[2], args[3], args[4], args[5], args[7], args[8], args[0])
	if err != nil {
		return false, fmt.Errorf("update survey %s: %w", sv.ID, err)
	}
	return affected(res)
}

func (s *SQLiteStore) DeleteSurvey(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM surveys WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete survey %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteStore) GetSurvey(ctx context.Context, id string) (*services.Survey, error) {
	sv, err := scanSurvey(s.db.QueryRowContext(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get survey %s: %w", id, err)
	}
	return sv, nil
}

func (s *SQLiteStore) ListSurveys(ctx context.Context) ([]*services.Survey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+surveyColumns+` FROM surveys ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()
	out := []*services.Survey{}
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

// ---- responses ----

func responseArgs(r *services.Response) ([]any, error) {
	answers := r.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	as, err := encodeJSON(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	var ct sql.NullFloat64
	if r.CompletionTime != nil {
		ct = sql.NullFloat64{Float64: *r.CompletionTime, Valid: true}
	}
	return []any{r.ID, r.SurveyID, r.UserID, as, formatTime(r.SubmittedAt), ct}, nil
}

const insertResponse = `INSERT INTO responses (id, survey_id, user_id, answers, submitted_at, completion_time)
	VALUES (?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) AddResponse(ctx context.Context, r *services.Response) error {
	args, err := responseArgs(r)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertResponse, args...); err != nil {
		return fmt.Errorf("insert response %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) PutResponse(ctx context.Context, r *services.Response) error {
	args, err := responseArgs(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertResponse+` ON CONFLICT(id) DO UPDATE SET survey_id = excluded.survey_id,
		user_id = excluded.user_id, answers = excluded.answers, submitted_at = excluded.submitted_at,
		completion_time = excluded.completion_time`, args...)
	if err != nil {
		return fmt.Errorf("put response %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, filter services.ResponseFilter) ([]*services.Response, error) {
	query := `SELECT id, survey_id, user_id, answers, submitted_at, completion_time FROM responses`
	var (
		where []string
		args  []any
	)
	if filter.SurveyID != "" {
		where = append(where, "survey_id = ?")
		args = append(args, filter.SurveyID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()
	out := []*services.Response{}
	for rows.Next() {
		var (
			r             services.Response
			as, submitted string
			ct            sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.SurveyID, &r.UserID, &as, &submitted, &ct); err != nil {
			return nil, err
		}
		if err := decodeJSON(as, &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
		}
		if r.SubmittedAt, err = parseTime(submitted); err != nil {
			return nil, fmt.Errorf("parse submitted_at of %s: %w", r.ID, err)
		}
		if ct.Valid {
			v := ct.Float64
			r.CompletionTime = &v
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ---- groups ----

const groupColumns = `id, name, description, members, assigned_surveys, created_at`

func groupArgs(g *services.Group) ([]any, error) {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	ms, err := encodeJSON(members)
	if err != nil {
		return nil, fmt.Errorf("encode members: %w", err)
	}
	assigned := g.AssignedSurveys
	if assigned == nil {
		assigned = []string{}
	}
	as, err := encodeJSON(assigned)
	if err != nil {
		return nil, fmt.Errorf("encode assigned surveys: %w", err)
	}
	return []any{g.ID, g.Name, g.Description, ms, as, formatTime(g.CreatedAt)}, nil
}

func scanGroup(row scanner) (*services.Group, error) {
	var (
		g               services.Group
		ms, as, created string
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &ms, &as, &created); err != nil {
		return nil, err
	}
	if err := decodeJSON(ms, &g.Members); err != nil {
		return nil, fmt.Errorf("decode members of %s: %w", g.ID, err)
	}
	if err := decodeJSON(as, &g.AssignedSurveys); err != nil {
		return nil, fmt.Errorf("decode assigned surveys of %s: %w", g.ID, err)
	}
	var err error
	if g.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", g.ID, err)
	}
	return &g, nil
}

func (s *SQLiteStore) CreateGroup(ctx context.Context, g *services.Group) error {
	args, err := groupArgs(g)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO user_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("insert group %s: %w", g.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateGroup(ctx context.Context, g *services.Group) (bool, error) {
	args, err := groupArgs(g)
	if err != nil {
		return false, err
	}
	args = append(args[1:], args[0])
	res, err := s.db.ExecContext(ctx, `UPDATE user_groups SET name = ?, description = ?, members = ?,
		assigned_surveys = ?, created_at = ? WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("update group %s: %w", g.ID, err)
	}
	return affected(res)
}

func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*services.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM user_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}
	return g, nil
}

func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*services.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM user_groups ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	out := []*services.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// withTx runs fn in one transaction. The pool opens transactions with
// BEGIN IMMEDIATE, so the read inside fn already holds the write lock.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// editIDList rewrites one JSON id list column of a row inside tx. It
// reports found=false when the row does not exist.
func editIDList(ctx context.Context, tx *sql.Tx, table, column, id, value string, add bool) (found, changed bool, err error) {
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT `+column+` FROM `+table+` WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	var list []string
	if err := decodeJSON(raw, &list); err != nil {
		return true, false, fmt.Errorf("decode %s of %s: %w", column, id, err)
	}
	if add {
		list, changed = services.AddID(list, value)
	} else {
		list, changed = services.RemoveID(list, value)
	}
	if !changed {
		return true, false, nil
	}
	if list == nil {
		list = []string{}
	}
	out, err := encodeJSON(list)
	if err != nil {
		return true, false, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE `+table+` SET `+column+` = ? WHERE id = ?`, out, id)
	return true, true, err
}

// editGroup applies one list edit to a group and, when mirror is set, the
// matching edit to the survey, all in one transaction.
func (s *SQLiteStore) editGroup(ctx context.Context, groupID, column, value string, add, mirror bool) (*services.Group, bool, error) {
	var (
		g       *services.Group
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		found, ch, err := editIDList(ctx, tx, "user_groups", column, groupID, value, add)
		if err != nil || !found {
			return err
		}
		changed = ch
		if mirror {
			if _, _, err := editIDList(ctx, tx, "surveys", "assigned_groups", value, groupID, add); err != nil {
				return err
			}
		}
		g, err = scanGroup(tx.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM user_groups WHERE id = ?`, groupID))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("edit group %s %s: %w", groupID, column, err)
	}
	return g, changed, nil
}

func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, userID string) (*services.Group, bool, error) {
	return s.editGroup(ctx, groupID, "members", userID, true, false)
}

func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, userID string) (*services.Group, bool, error) {
	return s.editGroup(ctx, groupID, "members", userID, false, false)
}

func (s *SQLiteStore) AssignGroupSurvey(ctx context.Context, groupID, surveyID string) (*services.Group, bool, error) {
	return s.editGroup(ctx, groupID, "assigned_surveys", surveyID, true, true)
}

func (s *SQLiteStore) UnassignGroupSurvey(ctx context.Context, groupID, surveyID string) (*services.Group, bool, error) {
	return s.editGroup(ctx, groupID, "assigned_surveys", surveyID, false, true)
}

// ---- templates ----

const templateColumns = `id, name, description, creator_id, questions, created_at, updated_at`

func templateArgs(t *services.Template) ([]any, error) {
	questions := t.Questions
	if questions == nil {
		questions = []services.Question{}
	}
	qs, err := encodeJSON(questions)
	if err != nil {
		return nil, fmt.Errorf("encode template questions: %w", err)
	}
	return []any{t.ID, t.Name, t.Description, t.CreatorID, qs, formatTime(t.CreatedAt), formatTime(t.UpdatedAt)}, nil
}

func scanTemplate(row scanner) (*services.Template, error) {
	var (
		t                    services.Template
		qs, created, updated string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CreatorID, &qs, &created, &updated); err != nil {
		return nil, err
	}
	if err := decodeJSON(qs, &t.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of template %s: %w", t.ID, err)
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of template %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at of template %s: %w", t.ID, err)
	}
	return &t, nil
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, t *services.Template) error {
	args, err := templateArgs(t)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("insert template %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTemplate(ctx context.Context, t *services.Template) (bool, error) {
	args, err := templateArgs(t)
	if err != nil {
		return false, err
	}
	args = append(args[1:], args[0])
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET name = ?, description = ?, creator_id = ?, questions = ?,
		created_at = ?, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("update template %s: %w", t.ID, err)
	}
	return affected(res)
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete template %s: %w", id, err)
	}
	return affected(res)
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*services.Template, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*services.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	out := []*services.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- users ----

func scanUser(row scanner) (*services.User, error) {
	var (
		u             services.User
		role, created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &created); err != nil {
		return nil, err
	}
	u.Role = services.Role(role)
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", u.ID, err)
	}
	return &u, nil
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, u *services.User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, email, role, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username, email = excluded.email,
		role = excluded.role, created_at = excluded.created_at`,
		u.ID, u.Username, u.Email, string(u.Role), formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*services.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT id, username, email, role, created_at FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*services.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, email, role, created_at FROM users ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := []*services.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---- audit ----

func (s *SQLiteStore) AddAudit(ctx context.Context, e services.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		formatTime(e.Time), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context) ([]services.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT time, actor, action, target, note FROM audit_log ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	out := []services.AuditEntry{}
	for rows.Next() {
		var (
			e  services.AuditEntry
			ts string
		)
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			return nil, err
		}
		if e.Time, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse audit time: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

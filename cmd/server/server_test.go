package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/surveydesk/internal/api"
	"github.com/soaringjerry/surveydesk/internal/config"
	dbstore "github.com/soaringjerry/surveydesk/internal/db"
	"github.com/soaringjerry/surveydesk/internal/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:        config.StoreMemory,
		Commit:       "abc123",
		JWTSecret:    "test-secret",
		CORSOrigins:  []string{"*"},
		ExportRPS:    1,
		ExportBurst:  1,
		FetchTimeout: time.Second,
		Location:     time.UTC,
		StaticDir:    t.TempDir(),
	}
}

func TestHealthAndVersion(t *testing.T) {
	h := buildHandler(testConfig(t), api.NewMemoryStore(), discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "zh", body["locale"])
	assert.Equal(t, "abc123", body["commit"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.JSONEq(t, `{"commit":"abc123","build_time":""}`, rec.Body.String())
}

func TestAPIIsMountedWithNoStore(t *testing.T) {
	h := buildHandler(testConfig(t), api.NewMemoryStore(), discardLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/surveys", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestStaticDirServesFrontend(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "index.html"), []byte("<h1>hi</h1>"), 0o600))
	h := buildHandler(cfg, api.NewMemoryStore(), discardLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>hi</h1>")
}

func TestMigrateIfNeededSeedsOnce(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "seed.json")
	snap := api.Snapshot{
		Users:   []*services.User{{ID: "u1", Username: "ann", Role: services.RoleRespondent}},
		Surveys: []*services.Survey{{ID: "s1", Title: "Pulse", Status: services.StatusActive}},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snapPath, raw, 0o600))

	ctx := context.Background()
	dbPath := filepath.Join(dir, "data", "surveydesk.db")
	require.NoError(t, MigrateIfNeeded(ctx, snapPath, dbPath, "", discardLogger()))

	st, err := openSQLiteStore(ctx, dbPath, "")
	require.NoError(t, err)
	surveys, err := st.ListSurveys(ctx)
	require.NoError(t, err)
	require.Len(t, surveys, 1)
	assert.Equal(t, "Pulse", surveys[0].Title)
	require.NoError(t, st.Close())

	// the file exists now, so a second run leaves it alone
	require.NoError(t, MigrateIfNeeded(ctx, filepath.Join(dir, "other.json"), dbPath, "", discardLogger()))
	assert.Error(t, MigrateIfNeeded(ctx, snapPath, "", "", discardLogger()))
}

func TestMigrateIfNeededRemovesPartialSeed(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "seed.json")
	snap := api.Snapshot{
		Users:     []*services.User{{ID: "u1", Username: "ann", Role: services.RoleRespondent}},
		Templates: []*services.Template{{ID: "t1", Name: "Pulse"}},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snapPath, raw, 0o600))

	// a schema without the templates table makes the copy fail midway
	oldSchema := filepath.Join(dir, "migrations")
	require.NoError(t, os.MkdirAll(oldSchema, 0o755))
	initSQL, err := dbstore.EmbedMigrations.ReadFile("migrations/00001_init.sql")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(oldSchema, "00001_init.sql"), initSQL, 0o600))

	ctx := context.Background()
	dbPath := filepath.Join(dir, "data", "surveydesk.db")
	require.Error(t, MigrateIfNeeded(ctx, snapPath, dbPath, oldSchema, discardLogger()))
	assert.NoFileExists(t, dbPath)

	require.NoError(t, MigrateIfNeeded(ctx, snapPath, dbPath, "", discardLogger()))
	st, err := openSQLiteStore(ctx, dbPath, "")
	require.NoError(t, err)
	defer st.Close()
	tpls, err := st.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, tpls, 1)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("SURVEYDESK_JWT_SECRET", "cli-secret")
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--user", "u1", "--role", "creator"})
	require.NoError(t, cmd.Execute())
	tok := strings.TrimSpace(out.String())
	assert.Equal(t, 2, strings.Count(tok, "."))

	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--user", "u1", "--role", "owner"})
	assert.ErrorContains(t, cmd.Execute(), "unknown role")
}

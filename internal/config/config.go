// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/soaringjerry/surveydesk/internal/utils"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"

	devJWTSecret = "surveydesk-dev-secret"
)

type Config struct {
	Addr           string
	Env            string // "development" (default) or "production"
	LogLevel       string // debug, info, warn, error
	Commit         string
	BuildTime      string
	StaticDir      string
	DevFrontendURL string

	Store         string // memory, sqlite or mongo
	SQLitePath    string
	MigrationsDir string // overrides the embedded migrations when set
	SnapshotPath  string // seeds an empty store on first start
	MongoURI      string
	MongoDB       string

	JWTSecret   string
	CORSOrigins []string

	ExportRPS    float64
	ExportBurst  int
	FetchTimeout time.Duration
	Timezone     string
	Location     *time.Location

	// Warnings collects non-fatal problems found while loading. The caller
	// logs them once the logger exists.
	Warnings []string
}

// Load reads an optional .env file and then SURVEYDESK_* variables. Values
// already present in the environment win over the file.
func Load() (*Config, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		warnings = append(warnings, fmt.Sprintf("ignoring .env: %v", err))
	}
	cfg := &Config{
		Addr:           utils.SafeEnv("SURVEYDESK_ADDR", ":8080"),
		Env:            utils.SafeEnv("SURVEYDESK_ENV", "development"),
		LogLevel:       utils.SafeEnv("SURVEYDESK_LOG_LEVEL", "info"),
		Commit:         utils.SafeEnv("SURVEYDESK_COMMIT", "dev"),
		BuildTime:      utils.SafeEnv("SURVEYDESK_BUILD_TIME", ""),
		StaticDir:      utils.SafeEnv("SURVEYDESK_STATIC_DIR", ""),
		DevFrontendURL: utils.SafeEnv("SURVEYDESK_DEV_FRONTEND_URL", ""),
		Store:          strings.ToLower(utils.SafeEnv("SURVEYDESK_STORE", StoreMemory)),
		SQLitePath:     utils.SafeEnv("SURVEYDESK_SQLITE_PATH", "data/surveydesk.db"),
		MigrationsDir:  utils.SafeEnv("SURVEYDESK_MIGRATIONS_DIR", ""),
		SnapshotPath:   utils.SafeEnv("SURVEYDESK_SNAPSHOT", ""),
		MongoURI:       utils.SafeEnv("SURVEYDESK_MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        utils.SafeEnv("SURVEYDESK_MONGO_DB", "surveydesk"),
		JWTSecret:      utils.SafeEnv("SURVEYDESK_JWT_SECRET", ""),
		CORSOrigins:    utils.EnvList("SURVEYDESK_CORS_ORIGINS", []string{"*"}),
		Timezone:       utils.SafeEnv("SURVEYDESK_TIMEZONE", "UTC"),
	}

	var err error
	if cfg.ExportRPS, err = utils.EnvFloat("SURVEYDESK_EXPORT_RPS", 1); err != nil {
		warnings = append(warnings, err.Error())
	}
	if cfg.ExportBurst, err = utils.EnvInt("SURVEYDESK_EXPORT_BURST", 5); err != nil {
		warnings = append(warnings, err.Error())
	}
	if cfg.FetchTimeout, err = utils.EnvDuration("SURVEYDESK_FETCH_TIMEOUT", 5*time.Second); err != nil {
		warnings = append(warnings, err.Error())
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("SURVEYDESK_TIMEZONE: unknown zone %q, using UTC", cfg.Timezone))
		loc = time.UTC
	}
	cfg.Location = loc

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
		warnings = append(warnings, "SURVEYDESK_JWT_SECRET not set, using the development secret")
	}
	cfg.Warnings = warnings

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SURVEYDESK_SQLITE_PATH is required for the sqlite store")
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDB == "" {
			return errors.New("SURVEYDESK_MONGO_URI and SURVEYDESK_MONGO_DB are required for the mongo store")
		}
	default:
		return fmt.Errorf("SURVEYDESK_STORE: unknown store %q", c.Store)
	}
	if c.IsProduction() && c.JWTSecret == devJWTSecret {
		return errors.New("SURVEYDESK_JWT_SECRET must be set in production")
	}
	if c.ExportRPS <= 0 || c.ExportBurst <= 0 {
		return errors.New("SURVEYDESK_EXPORT_RPS and SURVEYDESK_EXPORT_BURST must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("SURVEYDESK_FETCH_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SlogLevel maps LogLevel to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a JSON logger in production and a text logger otherwise.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/soaringjerry/surveydesk/internal/api"
	"github.com/soaringjerry/surveydesk/internal/config"
	dbstore "github.com/soaringjerry/surveydesk/internal/db"
)

// openStore builds the configured backend. The memory store is seeded from
// the snapshot on every start; SQLite is seeded once, on first run.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		if err := MigrateIfNeeded(ctx, cfg.SnapshotPath, cfg.SQLitePath, cfg.MigrationsDir, logger); err != nil {
			return nil, fmt.Errorf("first-run migration: %w", err)
		}
		return openSQLiteStore(ctx, cfg.SQLitePath, cfg.MigrationsDir)
	case config.StoreMongo:
		st, err := dbstore.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st := api.NewMemoryStore()
		if cfg.SnapshotPath == "" {
			return st, nil
		}
		snap, err := api.LoadSnapshot(cfg.SnapshotPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("snapshot not found, starting empty", "path", cfg.SnapshotPath)
				return st, nil
			}
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		stats, err := api.CopySnapshot(ctx, snap, st)
		if err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		logger.Info("memory store seeded", "path", cfg.SnapshotPath,
			"users", stats.Users, "groups", stats.Groups, "surveys", stats.Surveys,
			"templates", stats.Templates, "responses", stats.Responses)
		return st, nil
	}
}

func openSQLiteStore(ctx context.Context, path, migrationsDir string) (*dbstore.SQLiteStore, error) {
	sqlDB, err := dbstore.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := dbstore.RunMigrations(sqlDB, migrationsDir); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	st, err := dbstore.NewSQLiteStore(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return st, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/surveydesk/internal/api"
	"github.com/soaringjerry/surveydesk/internal/config"
)

// MigrateIfNeeded seeds a new SQLite database from a snapshot. It does
// nothing when the database file already exists or no snapshot is found.
func MigrateIfNeeded(ctx context.Context, snapshotPath, sqlitePath, migrationsDir string, logger *slog.Logger) error {
	if sqlitePath == "" {
		return errors.New("sqlite path is required")
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return nil // already migrated
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check sqlite file: %w", err)
	}
	if snapshotPath == "" {
		return nil
	}
	snap, err := api.LoadSnapshot(snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}

	logger.Info("first run detected, seeding sqlite from snapshot", "snapshot", snapshotPath, "sqlite", sqlitePath)
	stats, err := seedSQLite(ctx, snap, sqlitePath, migrationsDir)
	if err != nil {
		// a half-seeded file would count as migrated on the next start
		for _, p := range []string{sqlitePath, sqlitePath + "-wal", sqlitePath + "-shm"} {
			if rerr := os.Remove(p); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				logger.Warn("remove partial sqlite file", "path", p, "error", rerr)
			}
		}
		return err
	}
	logger.Info("data migration completed",
		"users", stats.Users, "groups", stats.Groups, "surveys", stats.Surveys,
		"templates", stats.Templates, "responses", stats.Responses)
	return nil
}

func seedSQLite(ctx context.Context, snap *api.Snapshot, sqlitePath, migrationsDir string) (api.CopyStats, error) {
	dst, err := openSQLiteStore(ctx, sqlitePath, migrationsDir)
	if err != nil {
		return api.CopyStats{}, err
	}
	stats, err := api.CopySnapshot(ctx, snap, dst)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return stats, fmt.Errorf("copy data: %w", err)
	}
	return stats, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			st, err := openSQLiteStore(cmd.Context(), cfg.SQLitePath, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			defer st.Close()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", cfg.SQLitePath)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a JSON or YAML snapshot into the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger := cfg.NewLogger()
			snap, err := api.LoadSnapshot(file)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			// the snapshot is copied explicitly below, not used as a seed
			cfg.SnapshotPath = ""
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			stats, err := api.CopySnapshot(cmd.Context(), snap, st)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d users, %d groups, %d surveys, %d templates, %d responses\n",
				stats.Users, stats.Groups, stats.Surveys, stats.Templates, stats.Responses)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file (.json, .yaml or .yml)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

package db

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
)

// RunMigrations applies pending goose migrations. When migrationsDir names
// an existing directory it is used instead of the embedded files.
func RunMigrations(db *sql.DB, migrationsDir string) error {
	dir := "migrations"
	goose.SetBaseFS(EmbedMigrations)
	if migrationsDir != "" {
		if st, err := os.Stat(migrationsDir); err == nil && st.IsDir() {
			goose.SetBaseFS(nil)
			dir = migrationsDir
		}
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

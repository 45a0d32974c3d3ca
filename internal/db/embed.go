package db

import "embed"

// EmbedMigrations holds the goose migrations compiled into the binary.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS

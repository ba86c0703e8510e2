package db

import "embed"

// EmbedMigrations contains the embedded catalog schema migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS

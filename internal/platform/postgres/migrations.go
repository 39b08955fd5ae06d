package postgres

import "embed"

// MigrationsFS embeds the goose migration scripts so deployments carry
// their schema with the binary.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsDir is the path of the migration scripts inside
// MigrationsFS.
const MigrationsDir = "migrations"

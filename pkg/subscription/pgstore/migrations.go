package pgstore

import "embed"

// Migrations holds the goose migrations for the tables used by Store and EventLedger.
// Apply them with pg.Migrate(ctx, pool, cfg, pgstore.Migrations, MigrationsDir, log).
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of the embedded goose migrations.
const MigrationsDir = "migrations"

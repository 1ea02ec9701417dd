package infrastructure

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

const migrationTableName = "schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// gooseLogger forwards goose output to the service logger.
type gooseLogger struct {
	logger Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info().Str("component", "migrations").Msgf(format, v...)
}

// Fatalf logs without exiting so the caller decides how to fail.
func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error().Str("component", "migrations").Msgf(format, v...)
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sqlx.DB, logger Logger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger: logger})
	goose.SetTableName(migrationTableName)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

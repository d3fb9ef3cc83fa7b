package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jbleroy75/boisson-api/internal/infra/config"
	"github.com/jbleroy75/boisson-api/migrations"
)

// Migrate applies the embedded goose migrations against the configured
// database. It opens a short-lived database/sql connection because goose
// drives the stdlib interface rather than pgx pools.
func Migrate(ctx context.Context, cfg config.PostgresSettings) error {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

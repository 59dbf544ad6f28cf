package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"delivery-wallet-engine/migrations"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Migrate runs goose with the embedded migrations. command is any goose command
// (up, down, status, version, redo, up-to, down-to).
func Migrate(ctx context.Context, dsn, command string, log zerolog.Logger, args ...string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}

	log.Info().Str("command", command).Msg("migrations applied")
	return nil
}

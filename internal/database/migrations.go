package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/001_init_schema.sql
var migrationSQL string

// RunMigrations creates the trades table when it is missing.
func RunMigrations(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	// Check if trades table exists
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'trades'
		)
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if migrations needed: %w", err)
	}

	if exists {
		// Existing deployments predate the closing claim column.
		if _, err := db.Exec(ctx, `ALTER TABLE trades ADD COLUMN IF NOT EXISTS closing_at TIMESTAMPTZ`); err != nil {
			return fmt.Errorf("failed to add closing_at column: %w", err)
		}
		logger.Info("[OK] Database already migrated, skipping...")
		return nil
	}

	if _, err := db.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("[OK] Database migrations completed")
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"lastsold-monitor/utils"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS seen_sales (
		card_url          TEXT         NOT NULL,
		identity_key      VARCHAR(64)  NOT NULL,
		first_observed_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		title             TEXT         NOT NULL DEFAULT '',
		sale_price        NUMERIC(12,2) NOT NULL DEFAULT 0,
		sold_at           TEXT         NOT NULL DEFAULT '',
		sale_condition    TEXT         NOT NULL DEFAULT '',
		PRIMARY KEY (card_url, identity_key)
	);

	CREATE INDEX IF NOT EXISTS idx_seen_sales_observed ON seen_sales(first_observed_at);
	CREATE INDEX IF NOT EXISTS idx_seen_sales_price    ON seen_sales(sale_price);
`

// newPostgresBackend connects to PostgreSQL, waiting for it to come up, and
// runs the schema migration.
func newPostgresBackend(ctx context.Context, dsn string, logger *utils.Logger) (*sqlBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, Logger: logger}
	err = retry.Do(ctx, "postgres-ping", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	b := &sqlBackend{
		db:      db,
		label:   "postgres",
		bind:    func(n int) string { return fmt.Sprintf("$%d", n) },
		tsValue: func(t time.Time) any { return t.UTC() },
	}
	if err := b.migrate(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return b, nil
}

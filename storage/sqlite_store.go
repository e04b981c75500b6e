package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS seen_sales (
		card_url          TEXT NOT NULL,
		identity_key      TEXT NOT NULL,
		first_observed_at TEXT NOT NULL,
		title             TEXT NOT NULL DEFAULT '',
		sale_price        TEXT NOT NULL DEFAULT '',
		sold_at           TEXT NOT NULL DEFAULT '',
		sale_condition    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (card_url, identity_key)
	);

	CREATE INDEX IF NOT EXISTS idx_seen_sales_observed ON seen_sales(first_observed_at);
`

// newSQLiteBackend opens (creating if needed) the SQLite file at path.
func newSQLiteBackend(ctx context.Context, path string) (*sqlBackend, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: resolve path %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", absPath, err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %q: %w", absPath, err)
	}

	b := &sqlBackend{
		db:    db,
		label: "sqlite:" + absPath,
		bind:  func(int) string { return "?" },
		tsValue: func(t time.Time) any {
			return t.UTC().Format(time.RFC3339Nano)
		},
	}
	if err := b.migrate(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return b, nil
}

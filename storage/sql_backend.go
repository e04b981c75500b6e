package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lastsold-monitor/models"
)

// sqlBackend persists the seen-set in a seen_sales table. SQLite and
// PostgreSQL share it; they differ only in placeholders and schema types.
type sqlBackend struct {
	db      *sql.DB
	label   string
	bind    func(n int) string
	tsValue func(t time.Time) any
}

func (b *sqlBackend) name() string { return b.label }

func (b *sqlBackend) migrate(ctx context.Context, schema string) error {
	_, err := b.db.ExecContext(ctx, schema)
	return err
}

func (b *sqlBackend) loadAll(ctx context.Context) ([]models.SeenEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT card_url, identity_key, first_observed_at, title, sale_price, sold_at, sale_condition
		FROM seen_sales
		ORDER BY card_url, first_observed_at
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: load: %w", b.label, err)
	}
	defer rows.Close()

	var entries []models.SeenEntry
	for rows.Next() {
		var (
			e        models.SeenEntry
			observed any
		)
		if err := rows.Scan(&e.CardURL, &e.Key, &observed, &e.Title, &e.Price, &e.SoldAt, &e.Condition); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", b.label, err)
		}
		if e.FirstObservedAt, err = scanTime(observed); err != nil {
			return nil, fmt.Errorf("%s: first_observed_at for %s: %w", b.label, e.Key, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// persist inserts all entries inside one transaction.
func (b *sqlBackend) persist(ctx context.Context, entries []models.SeenEntry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", b.label, err)
	}
	defer tx.Rollback() //nolint:errcheck

	const batchSize = 50
	for i := 0; i < len(entries); i += batchSize {
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := b.insertBatch(ctx, tx, entries[i:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", b.label, err)
	}
	return nil
}

func (b *sqlBackend) insertBatch(ctx context.Context, tx *sql.Tx, batch []models.SeenEntry) error {
	const cols = 7
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*cols)

	for idx, e := range batch {
		base := idx * cols
		ph := make([]string, cols)
		for c := range ph {
			ph[c] = b.bind(base + c + 1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			e.CardURL, e.Key, b.tsValue(e.FirstObservedAt), e.Title, e.Price, e.SoldAt, e.Condition)
	}

	query := fmt.Sprintf(`
		INSERT INTO seen_sales (card_url, identity_key, first_observed_at, title, sale_price, sold_at, sale_condition)
		VALUES %s
		ON CONFLICT (card_url, identity_key) DO NOTHING
	`, strings.Join(valueStrings, ","))

	if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("%s: insert batch: %w", b.label, err)
	}
	return nil
}

func (b *sqlBackend) close() error {
	return b.db.Close()
}

func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	case int64:
		return time.Unix(0, t).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

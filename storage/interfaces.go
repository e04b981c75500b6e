package storage

import (
	"context"
	"errors"

	"lastsold-monitor/models"
)

// ErrStoreUnavailable marks any failure of the persistence layer. Callers
// must treat it as "state unknown", never as "nothing seen yet".
var ErrStoreUnavailable = errors.New("seen-set store unavailable")

// SeenStore is what the change-detection engine needs from the seen-set.
type SeenStore interface {
	Contains(cardURL, key string) (bool, error)
	// Insert records a first observation; inserting a present key is a no-op.
	Insert(entry models.SeenEntry) error
	// Flush persists pending inserts store-wide, across all card URLs.
	Flush(ctx context.Context) error
}

// backend is the durable half of a Store.
type backend interface {
	name() string
	loadAll(ctx context.Context) ([]models.SeenEntry, error)
	// persist writes entries atomically: either all of them become durable or
	// none do.
	persist(ctx context.Context, entries []models.SeenEntry) error
	close() error
}

// SalesExporter is the interface for writing seen sales out of the store.
type SalesExporter interface {
	Export(entries []models.SeenEntry) error
	Close() error
}

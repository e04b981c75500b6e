package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"lastsold-monitor/models"
	"lastsold-monitor/utils"
)

// Store is the seen-set: an in-memory index of reported sale identities per
// card URL, backed by durable storage. Inserts stay pending until Flush;
// the last successful flush is the recovery point after a crash.
type Store struct {
	backend backend
	logger  *utils.Logger

	mu      sync.Mutex
	loaded  bool
	closed  bool
	seen    map[string]map[string]models.SeenEntry
	pending []models.SeenEntry
}

func newStore(b backend, logger *utils.Logger) *Store {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Store{backend: b, logger: logger}
}

// Open picks a backend from location, connects and loads the seen-set.
//
//	postgres://... or postgresql://...  -> PostgreSQL
//	*.msgpack                           -> msgpack snapshot file
//	anything else                       -> SQLite file
func Open(ctx context.Context, location string, logger *utils.Logger) (*Store, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	var (
		b   backend
		err error
	)
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		b, err = newPostgresBackend(ctx, location, logger)
	case strings.HasSuffix(location, ".msgpack"):
		b, err = newFileBackend(location)
	default:
		b, err = newSQLiteBackend(ctx, location)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s := newStore(b, logger)
	if err := s.Load(ctx); err != nil {
		_ = b.close()
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory index with what the backend holds.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store closed", ErrStoreUnavailable)
	}

	entries, err := s.backend.loadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: load from %s: %v", ErrStoreUnavailable, s.backend.name(), err)
	}

	s.seen = make(map[string]map[string]models.SeenEntry)
	for _, e := range entries {
		s.index(e)
	}
	s.pending = nil
	s.loaded = true

	s.logger.Info("[store] Loaded %d seen sales from %s", len(entries), s.backend.name())
	return nil
}

func (s *Store) index(e models.SeenEntry) bool {
	byKey, ok := s.seen[e.CardURL]
	if !ok {
		byKey = make(map[string]models.SeenEntry)
		s.seen[e.CardURL] = byKey
	}
	if _, dup := byKey[e.Key]; dup {
		return false
	}
	byKey[e.Key] = e
	return true
}

func (s *Store) usable() error {
	if s.closed {
		return fmt.Errorf("%w: store closed", ErrStoreUnavailable)
	}
	if !s.loaded {
		return fmt.Errorf("%w: store not loaded", ErrStoreUnavailable)
	}
	return nil
}

// Contains reports whether key was already seen for cardURL.
func (s *Store) Contains(cardURL, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return false, err
	}
	_, ok := s.seen[cardURL][key]
	return ok, nil
}

// Insert adds an entry if its key is new for the card URL.
func (s *Store) Insert(e models.SeenEntry) error {
	if e.CardURL == "" || e.Key == "" {
		return fmt.Errorf("store: insert: card url and key are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}
	if s.index(e) {
		s.pending = append(s.pending, e)
	}
	return nil
}

// Flush makes every pending insert durable, for every card URL, not only the
// one whose cycle calls it. On failure the pending entries are kept and
// retried on the next flush.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.backend.persist(ctx, s.pending); err != nil {
		return fmt.Errorf("%w: flush %d entries to %s: %v", ErrStoreUnavailable, len(s.pending), s.backend.name(), err)
	}
	s.logger.Debug("[store] Flushed %d new entries to %s", len(s.pending), s.backend.name())
	s.pending = nil
	return nil
}

// Pending returns how many inserts are waiting for a flush.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Entries returns every seen entry ordered by card URL then first observation.
func (s *Store) Entries() ([]models.SeenEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return nil, err
	}

	var out []models.SeenEntry
	for _, byKey := range s.seen {
		for _, e := range byKey {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CardURL != out[j].CardURL {
			return out[i].CardURL < out[j].CardURL
		}
		if !out[i].FirstObservedAt.Equal(out[j].FirstObservedAt) {
			return out[i].FirstObservedAt.Before(out[j].FirstObservedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Close flushes what is pending and releases the backend. It is safe to call
// more than once.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var flushErr error
	if s.loaded {
		flushErr = s.flushLocked(ctx)
	}
	s.closed = true
	return errors.Join(flushErr, s.backend.close())
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"lastsold-monitor/models"
)

// fileSnapshot is the on-disk layout: card URL -> identity key -> entry.
type fileSnapshot struct {
	Version int                                    `msgpack:"version"`
	Cards   map[string]map[string]models.SeenEntry `msgpack:"cards"`
}

// fileBackend keeps the whole seen-set in one msgpack file. Every persist
// writes a complete new snapshot to a temp file and renames it over the old
// one, so a crash leaves either the previous or the new snapshot.
type fileBackend struct {
	path  string
	state fileSnapshot
}

func newFileBackend(path string) (*fileBackend, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("file store: resolve path %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &fileBackend{path: absPath}, nil
}

func (b *fileBackend) name() string { return "file:" + b.path }

func (b *fileBackend) loadAll(ctx context.Context) ([]models.SeenEntry, error) {
	b.state = fileSnapshot{Version: 1, Cards: make(map[string]map[string]models.SeenEntry)}

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read: %w", err)
	}

	var snap fileSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("file store: decode %s: %w", b.path, err)
	}
	if snap.Cards != nil {
		b.state.Cards = snap.Cards
	}

	var out []models.SeenEntry
	for _, byKey := range b.state.Cards {
		for _, e := range byKey {
			out = append(out, e)
		}
	}
	return out, ctx.Err()
}

func (b *fileBackend) persist(ctx context.Context, entries []models.SeenEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next := fileSnapshot{Version: 1, Cards: make(map[string]map[string]models.SeenEntry, len(b.state.Cards))}
	for url, byKey := range b.state.Cards {
		cp := make(map[string]models.SeenEntry, len(byKey))
		for k, e := range byKey {
			cp[k] = e
		}
		next.Cards[url] = cp
	}
	for _, e := range entries {
		byKey, ok := next.Cards[e.CardURL]
		if !ok {
			byKey = make(map[string]models.SeenEntry)
			next.Cards[e.CardURL] = byKey
		}
		if _, dup := byKey[e.Key]; !dup {
			byKey[e.Key] = e
		}
	}

	data, err := msgpack.Marshal(&next)
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}
	if err := writeFileAtomic(b.path, data); err != nil {
		return err
	}
	b.state = next
	return nil
}

func (b *fileBackend) close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file store: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file store: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

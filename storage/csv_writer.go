package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lastsold-monitor/models"
)

// CSVWriter exports seen sales as CSV. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	closer io.Closer
	writer *csv.Writer
}

var csvHeader = []string{
	"card_url", "title", "price", "sold_at", "condition", "first_observed_at", "identity_key",
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	c, err := newCSVWriter(f, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

// NewCSVStreamWriter writes CSV to an arbitrary stream such as stdout.
// Close flushes but does not close the stream.
func NewCSVStreamWriter(w io.Writer) (*CSVWriter, error) {
	return newCSVWriter(w, nil)
}

func newCSVWriter(w io.Writer, closer io.Closer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	cw.Flush()
	return &CSVWriter{closer: closer, writer: cw}, cw.Error()
}

// Export writes one row per seen sale.
func (c *CSVWriter) Export(entries []models.SeenEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		row := []string{
			e.CardURL,
			e.Title,
			e.Price,
			e.SoldAt,
			e.Condition,
			e.FirstObservedAt.UTC().Format(time.RFC3339),
			e.Key,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	if c.closer == nil {
		return c.writer.Error()
	}
	return c.closer.Close()
}

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastsold-monitor/models"
	"lastsold-monitor/storage"
)

func seedStore(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Insert(models.SeenEntry{
		CardURL:         "https://www.tcgplayer.com/product/649586/pikachu",
		Key:             "k1",
		FirstObservedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		Title:           "Pikachu",
		Price:           "12.34",
		SoldAt:          "2024-03-09",
		Condition:       "Near Mint",
	}))
	require.NoError(t, store.Close(ctx))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestConfig(t *testing.T, storagePath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "targets: [\"https://www.tcgplayer.com/product/649586/pikachu\"]\n" +
		"storagePath: " + storagePath + "\n" +
		"minPrice: \"1.50\"\n" +
		"log: {level: error}\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheckConfig(t *testing.T) {
	cfgPath := writeTestConfig(t, filepath.Join(t.TempDir(), "seen.db"))

	out, err := runCLI(t, "check-config", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration OK")
	assert.Contains(t, out, "$1.50")
	assert.Contains(t, out, "Pikachu")
}

func TestCheckConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intervalSeconds: 0\n"), 0o644))

	_, err := runCLI(t, "check-config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets")
}

func TestExportToStdout(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "seen.msgpack")
	seedStore(t, storePath)

	out, err := runCLI(t, "export", "--config", writeTestConfig(t, storePath), "--out", "-")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "card_url,"))
	assert.Contains(t, lines[1], "12.34")
	assert.Contains(t, lines[1], "Near Mint")
}

func TestStats(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "seen.db")
	seedStore(t, storePath)

	out, err := runCLI(t, "stats", "--config", writeTestConfig(t, storePath))
	require.NoError(t, err)
	assert.Contains(t, out, "Total sales recorded")
	assert.Contains(t, out, "$12.34")
}

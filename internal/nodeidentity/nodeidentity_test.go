package nodeidentity

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorky-robot/salita-mesh/pkg/log"
)

func testLogger() log.Logger {
	return log.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoadOrCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreate(dir, testLogger())
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, first.Name)

	second, err := LoadOrCreate(dir, testLogger())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadOrCreateWritesFile(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreate(dir, testLogger())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), id.ID)
	assert.Contains(t, string(data), id.Name)
}

package logger

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestEntryCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetLevel("debug")
	defer SetLevel("info")

	With("client", "C1").With("batch", "b-1").Infof("placed %d", 3)

	out := buf.String()
	assert.Contains(t, out, "placed 3")
	assert.Contains(t, out, "client=C1")
	assert.Contains(t, out, "batch=b-1")
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetLevel("info")

	Debugf("hidden")
	Warnf("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, "info", Level())
}

func TestRotatingWriterCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "desk.log")
	w, err := RotatingWriter(path, 1, 1, 1)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.FileExists(t, path)

	_, err = RotatingWriter("  ", 1, 1, 1)
	assert.Error(t, err)
}

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	t.Helper()
	prev := L
	t.Cleanup(func() {
		require.NoError(t, Close())
		L = prev
	})
}

func TestDefaultDiscards(t *testing.T) {
	restoreLogger(t)
	require.NoError(t, Close())
	require.False(t, Enabled(slog.LevelError))
}

func TestInitDisabledDiscards(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Output: &buf}))
	require.True(t, Enabled(slog.LevelInfo))

	require.NoError(t, Init(Options{Enabled: false}))
	require.False(t, L.Enabled(t.Context(), slog.LevelError))
	require.False(t, Enabled(slog.LevelDebug))
	Error("dropped")
	require.Empty(t, buf.String())
}

func TestInitTextOutput(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Output: &buf, Level: slog.LevelDebug}))

	Debug("pool added", "handle", 1)
	require.Contains(t, buf.String(), "pool added")
	require.Contains(t, buf.String(), "handle=1")
}

func TestInitLevelFilters(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Output: &buf, Level: slog.LevelWarn}))

	Info("hidden")
	Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestInitJSONFile(t *testing.T) {
	restoreLogger(t)
	path := filepath.Join(t.TempDir(), "pool.log")
	require.NoError(t, Init(Options{Enabled: true, File: path, JSON: true}))

	Error("assertion failed", "reason", "double free")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	require.Equal(t, "assertion failed", rec["msg"])
	require.Equal(t, "double free", rec["reason"])
}

func TestInitClosesPreviousFile(t *testing.T) {
	restoreLogger(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	require.NoError(t, Init(Options{Enabled: true, File: first}))
	prev := file
	require.NotNil(t, prev)

	require.NoError(t, Init(Options{Enabled: true, File: filepath.Join(dir, "second.log")}))
	require.NotSame(t, prev, file)
	require.ErrorIs(t, prev.Close(), os.ErrClosed)

	require.NoError(t, Close())
	require.Nil(t, file)
	require.NoError(t, Close())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("chatty")
	require.Error(t, err)
}

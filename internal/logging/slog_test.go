package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBuffered(level slog.Level) (*SlogLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})

	return NewSlog(slog.New(handler)), buf
}

func TestNewSlog_NilUsesDefault(t *testing.T) {
	logger := NewSlog(nil)

	require.NotNil(t, logger)
	require.NotNil(t, logger.logger)
}

func TestSlogLogger_Levels(t *testing.T) {
	logger, buf := newBuffered(slog.LevelDebug)

	logger.Debug("debug message", "viewer", 7)
	logger.Info("info message", "targets", 3)
	logger.Warn("warn message", "key", "reach:7:0:visible_section_ids")
	logger.Error("error message", "error", "boom")

	output := buf.String()
	require.Contains(t, output, "level=DEBUG")
	require.Contains(t, output, "viewer=7")
	require.Contains(t, output, "level=INFO")
	require.Contains(t, output, "targets=3")
	require.Contains(t, output, "level=WARN")
	require.Contains(t, output, "level=ERROR")
	require.Contains(t, output, "error=boom")
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBuffered(slog.LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestSlogLogger_With(t *testing.T) {
	logger, buf := newBuffered(slog.LevelInfo)

	logger.With("component", "balancer").Info("distributed", "added", 4)

	require.Contains(t, buf.String(), "component=balancer")
	require.Contains(t, buf.String(), "added=4")
}

func TestSlogLogger_Fatal(t *testing.T) {
	logger, buf := newBuffered(slog.LevelInfo)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal("fatal message", "reason", "test")

	require.Equal(t, 1, code)
	require.Contains(t, buf.String(), "fatal message")
	require.Contains(t, buf.String(), "level=ERROR")
}

func TestNewJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewJSON(buf, slog.LevelInfo)

	logger.Info("resolved", "kept", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "resolved", rec["msg"])
	require.InDelta(t, 2, rec["kept"], 0)
}

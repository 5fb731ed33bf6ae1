package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel, format string) (*TagnestLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&LoggerConfig{Level: level, Format: format, Output: &buf}), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := make(map[string]interface{})
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFatal, "FATAL"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, "json")
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, nil, "warn message")
	logger.Error(ctx, errors.New("boom"), "error message")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn message", entries[0]["msg"])
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "error message", entries[1]["msg"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestJSONFields(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, "json")

	logger.WithComponent("scanner").
		With("root", "site").
		Info(context.Background(), "scan finished", "files", 3, "dangling")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "scan finished", e["msg"])
	assert.Equal(t, "scanner", e["component"])
	assert.Equal(t, "site", e["root"])
	assert.EqualValues(t, 3, e["files"])
	_, ok := e["dangling"]
	assert.False(t, ok)
}

func TestWithDoesNotMutateParent(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, "json")
	ctx := context.Background()

	child := logger.With("request", "abc")
	logger.Info(ctx, "parent")
	child.Info(ctx, "child")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	_, ok := entries[0]["request"]
	assert.False(t, ok)
	assert.Equal(t, "abc", entries[1]["request"])
}

func TestTextFormat(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")
	logger.Info(context.Background(), "hello", "path", "a.html")

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "msg=hello")
	assert.Contains(t, out, "path=a.html")
}

func TestNilContext(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")
	//nolint:staticcheck // nil context is tolerated
	logger.Info(nil, "still logged")
	assert.Contains(t, buf.String(), "still logged")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "discarded")
	})
}

func TestPerfLogger(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, "json")
	ctx := context.Background()

	op := logger.StartOperation("check")
	op.End(ctx, "files", 2)

	failed := logger.StartOperation("watch")
	failed.EndWithError(ctx, errors.New("closed"))

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "Operation completed", entries[0]["msg"])
	assert.Equal(t, "check", entries[0]["operation"])
	assert.Contains(t, entries[0], "duration_ms")
	assert.Equal(t, "Operation failed", entries[1]["msg"])
	assert.Equal(t, "closed", entries[1]["error"])
}

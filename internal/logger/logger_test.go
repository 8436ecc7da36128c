package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/johnayoung/go-price-sync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}

	for input, expected := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, ParseLevel(input))
		})
	}
}

func TestNewLoggerManager_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sync.log")

	lm, err := NewLoggerManager(config.LoggingConfig{
		Level:         "info",
		Format:        "json",
		Output:        "file",
		FilePath:      path,
		MaxSize:       1,
		MaxBackups:    1,
		MaxAge:        1,
		ContextFields: map[string]string{"service": "price-sync"},
	})
	require.NoError(t, err)

	lm.GetComponentLogger("coordinator").Info("sync completed", "bars", 3)
	require.NoError(t, lm.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "sync completed", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "coordinator", entry["component"])
	assert.Equal(t, "price-sync", entry["service"])
	assert.EqualValues(t, 3, entry["bars"])
}

func TestNewLoggerManager_FileOutputRequiresPath(t *testing.T) {
	_, err := NewLoggerManager(config.LoggingConfig{Output: "file"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file path is required")
}

func TestGetComponentLogger_Caches(t *testing.T) {
	lm, err := NewLoggerManager(config.LoggingConfig{Level: "error", Output: "stderr"})
	require.NoError(t, err)
	defer lm.Close()

	first := lm.GetComponentLogger("fetcher")
	second := lm.GetComponentLogger("fetcher")

	assert.Equal(t, "fetcher", first.Component())
	assert.Same(t, first.Logger, second.Logger)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetSyncID(ctx))
	assert.Empty(t, GetRequestID(ctx))

	ctx, id := NewSyncContext(ctx)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSymbol(ctx, "AAPL")
	ctx = WithDataKind(ctx, "daily")

	assert.NotEmpty(t, id)
	assert.Equal(t, id, GetSyncID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	FromContext(ctx, base).Info("loaded")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, id, entry["sync_id"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, "daily", entry["data_kind"])
	assert.NotContains(t, entry, "trace_id")
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, TimedOperation(context.Background(), base, "merge", func() error { return nil }))
	assert.Contains(t, buf.String(), "operation completed")

	buf.Reset()
	boom := errors.New("disk full")
	err := TimedOperation(context.Background(), base, "merge", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "operation failed")
	assert.Contains(t, buf.String(), "disk full")
}

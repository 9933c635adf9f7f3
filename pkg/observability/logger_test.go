package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(t *testing.T, buf *bytes.Buffer, level LogLevel) func(ctx context.Context, msg string, args ...any) map[string]any {
	t.Helper()
	logger := NewLogger(LogConfig{Level: level, Format: LogFormatJSON, Output: buf, ServiceName: "keystone-worker", ServiceVersion: "1.2.0"})
	return func(ctx context.Context, msg string, args ...any) map[string]any {
		buf.Reset()
		logger.InfoContext(ctx, msg, args...)
		if buf.Len() == 0 {
			return nil
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		return entry
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Output: &buf}).Info("role granted", "role", "Coach")

	assert.Contains(t, buf.String(), "role granted")
	assert.Contains(t, buf.String(), "role=Coach")
}

func TestNewLogger_JSONCarriesServiceAndScope(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(t, &buf, LogLevelInfo)

	ctx := NewRequestContext(context.Background(), "corr-1")
	ctx = WithUserID(ctx, "user-7")
	entry := log(ctx, "payment applied", "transaction_id", "txn-1")

	assert.Equal(t, "payment applied", entry["msg"])
	assert.Equal(t, "keystone-worker", entry["service"])
	assert.Equal(t, "1.2.0", entry["version"])
	assert.Equal(t, "corr-1", entry[CorrelationIDKey])
	assert.Equal(t, "user-7", entry[UserIDKey])
	assert.NotEmpty(t, entry[RequestIDKey])
	assert.Equal(t, "txn-1", entry["transaction_id"])
}

func TestNewLogger_NoScopeNoKeys(t *testing.T) {
	var buf bytes.Buffer
	entry := jsonLogger(t, &buf, LogLevelInfo)(context.Background(), "sweep finished")

	assert.NotContains(t, entry, CorrelationIDKey)
	assert.NotContains(t, entry, UserIDKey)
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	entry := jsonLogger(t, &buf, LogLevelInfo)(context.Background(), "login",
		"email", "a@example.com",
		"password", "hunter22",
		"Access_Token", "eyJ...",
	)

	assert.Equal(t, "a@example.com", entry["email"])
	assert.Equal(t, "[redacted]", entry["password"])
	assert.Equal(t, "[redacted]", entry["Access_Token"])
	assert.NotContains(t, buf.String(), "hunter22")
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	assert.NotContains(t, buf.String(), "debug message")
	assert.NotContains(t, buf.String(), "info message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestNewLogger_WithKeepsScope(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf}).With("component", "sweeper").WithGroup("batch")

	logger.InfoContext(WithCorrelationID(context.Background(), "corr-9"), "done", "size", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sweeper", entry["component"])
	assert.Contains(t, buf.String(), "corr-9")
}

func TestLogConfigFor(t *testing.T) {
	dev := LogConfigFor("development", "", "", "")
	assert.Equal(t, LogFormatText, dev.Format)
	assert.Equal(t, "keystone", dev.ServiceName)
	assert.Equal(t, os.Stderr, dev.Output)

	prod := LogConfigFor("production", "keystone-api", "DEBUG", "")
	assert.Equal(t, LogFormatJSON, prod.Format)
	assert.Equal(t, LogLevelDebug, prod.Level)
	assert.Equal(t, "keystone-api", prod.ServiceName)
	assert.True(t, prod.AddSource)

	override := LogConfigFor("production", "", "", "text")
	assert.Equal(t, LogFormatText, override.Format)
}

func TestLogLevel_slogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.slogLevel().String())
	assert.Equal(t, "WARN", LogLevelWarn.slogLevel().String())
	assert.Equal(t, "ERROR", LogLevelError.slogLevel().String())
	assert.Equal(t, "INFO", LogLevel("verbose").slogLevel().String())
}

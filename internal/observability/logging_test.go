package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_AddsContextValues(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, uint(42))
	ctx = context.WithValue(ctx, TraceIDKey, "trace-9")
	logger.With("component", "sweeper").InfoContext(ctx, "expired pending requests")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "expired pending requests", record["msg"])
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, float64(42), record["user_id"])
	assert.Equal(t, "trace-9", record["trace_id"])
	assert.Equal(t, "sweeper", record["component"])
}

func TestLogger_TextOutsideProduction(t *testing.T) {
	var buf bytes.Buffer
	newLogger("development", &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestConfigureLogger_ReplacesGlobal(t *testing.T) {
	prev := GlobalLogger
	t.Cleanup(func() { GlobalLogger = prev })

	ConfigureLogger("test", "")
	assert.NotSame(t, prev, GlobalLogger)
}

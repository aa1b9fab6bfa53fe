package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesJSONWithServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "WARN", Service: "portal", Environment: "test", Output: &buf})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept", zap.String("code", "UNAVAILABLE"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "portal", entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "UNAVAILABLE", entry["code"])
	assert.Contains(t, entry, "timestamp")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "chatty", Encoding: "console", Output: &buf})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	assert.Same(t, base, FromContext(context.Background(), base))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithFields(ctx, zap.String("client_ip", "10.0.0.1"))
	ctx = ContextWithFields(ctx, zap.String("user_agent", "curl"))
	FromContext(ctx, base).Info("handled")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "10.0.0.1", fields["client_ip"])
	assert.Equal(t, "curl", fields["user_agent"])
	assert.Equal(t, "req-1", RequestID(ctx))
}

package logger

import (
	"context"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/orderfeed/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewBuildsLogger(t *testing.T) {
	log, err := New(nil, Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOwnerID(ctx, "u1")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "u1", fields["owner_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextOmitsAbsentFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithContext(context.Background(), zap.New(core)).Info("bare")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}

func TestSamplingDefaults(t *testing.T) {
	window, initial, thereafter := Config{}.sampling()
	assert.Equal(t, time.Second, window)
	assert.Equal(t, 100, initial)
	assert.Equal(t, 100, thereafter)

	window, initial, _ = Config{SamplingWindow: time.Minute, SamplingInitial: 5}.sampling()
	assert.Equal(t, time.Minute, window)
	assert.Equal(t, 5, initial)
}

func TestWithOwner(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithOwner(zap.New(core), " u2 ").Info("x")
	assert.Equal(t, "u2", logs.All()[0].ContextMap()["owner_id"])
	assert.Nil(t, WithOwner(nil, "u2"))
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "console", normalizeFormat(" Console "))
	assert.Equal(t, "json", normalizeFormat("xml"))
}

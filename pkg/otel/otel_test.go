package otel

import (
	"context"
	"testing"

	"projectmonitor/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewConfig(t *testing.T) {
	t.Setenv("CONFIG_ENV", "production")
	cfg := NewConfig("monitor-service", "1.2.3", config.OtelConfig{Enabled: true, Endpoint: "collector:4317", SampleRatio: 0.5})

	assert.Equal(t, "monitor-service", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 0.5, cfg.SampleRatio)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Config{}.sampler().Description(), "TraceIDRatioBased{0.25}")
	assert.Contains(t, Config{SampleRatio: 1}.sampler().Description(), "root:AlwaysOnSampler")
}

func TestInitDisabledKeepsNoopTracer(t *testing.T) {
	shutdown, err := Init(Config{ServiceName: "test"}, zap.NewNop())
	require.NoError(t, err)
	shutdown()

	_, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

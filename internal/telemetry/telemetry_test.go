package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

// TestConfigFromEnvDefaults tests that tracing is off until an endpoint is set.
func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("RELAY_OTEL_ENDPOINT", "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, "relaychat", cfg.ServiceName)
	assert.False(t, cfg.active())
}

// TestConfigFromEnv tests that RELAY_OTEL_* variables are read, including
// the kill switch.
func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RELAY_OTEL_ENDPOINT", "http://127.0.0.1:4318")
	t.Setenv("RELAY_OTEL_ENABLED", "FALSE")
	t.Setenv("RELAY_OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("RELAY_OTEL_SERVICE_NAME", "relay-edge")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:4318", cfg.Endpoint)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, "relay-edge", cfg.ServiceName)
	assert.False(t, cfg.active())
}

func TestConfigFromEnvInvalid(t *testing.T) {
	t.Setenv("RELAY_OTEL_SAMPLE_RATIO", "most")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Config{SampleRatio: 1}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Config{SampleRatio: 0}.sampler().Description(), "AlwaysOffSampler")
	assert.Contains(t, Config{SampleRatio: 0.5}.sampler().Description(), "TraceIDRatioBased")
}

// TestSetupInactive tests that an inactive config registers nothing.
func TestSetupInactive(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Config{Endpoint: "http://127.0.0.1:4318", Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

// TestSetupActive tests that an active config installs a provider whose
// shutdown succeeds without any exported spans.
func TestSetupActive(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "http://127.0.0.1:4318",
		Enabled:     true,
		SampleRatio: 1,
		ServiceName: "relaychat-test",
	})
	require.NoError(t, err)
	assert.NotEqual(t, before, otel.GetTracerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}

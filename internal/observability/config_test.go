package observability

import (
	"testing"

	"github.com/smallbiznis/billingportal/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaultsServiceName(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "production", OtelSamplingRatio: 4})

	assert.Equal(t, "billingportal", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestConfigViews(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:           "portal",
		AppVersion:        "1.2.0",
		Environment:       "dev",
		LogFormat:         "console",
		OtelEnabled:       true,
		OTLPEndpoint:      "collector:4317",
		OTLPProtocol:      "grpc",
		OtelSamplingRatio: 0.5,
	})

	log := cfg.Logger()
	assert.True(t, log.Debug)
	assert.Equal(t, "console", log.Format)
	assert.Equal(t, "1.2.0", log.Version)

	tr := cfg.Tracing()
	assert.True(t, tr.Enabled)
	assert.Equal(t, "collector:4317", tr.ExporterEndpoint)
	assert.Equal(t, 0.5, tr.SamplingRatio)

	m := cfg.Metrics()
	assert.Equal(t, "portal", m.ServiceName)
	assert.Equal(t, "grpc", m.ExporterProtocol)
}

// Package observability wires logging, tracing and metrics for the portal.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/billingportal/internal/observability/logger"
	"github.com/smallbiznis/billingportal/internal/observability/metrics"
	"github.com/smallbiznis/billingportal/internal/observability/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
	),
	fx.Provide(
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.NewAPIMetrics,
	),
	// The tracer provider has no consumer in the graph; it is built for its
	// global registration.
	fx.Invoke(func(trace.TracerProvider) {}),
)

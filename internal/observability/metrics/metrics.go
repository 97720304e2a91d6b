package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 15 * time.Second

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

type counter int

const (
	loginAttempts counter = iota
	rateLimitDenials
	walletTopUps
	invoiceDownloads
)

var counterDefs = map[counter]struct{ name, description string }{
	loginAttempts:    {"portal_logins_total", "Login submissions by outcome."},
	rateLimitDenials: {"portal_rate_limit_denied_total", "Requests refused by a rate limiter."},
	walletTopUps:     {"portal_wallet_topups_total", "Wallet top-ups by outcome."},
	invoiceDownloads: {"portal_invoice_downloads_total", "Invoice PDF downloads by outcome."},
}

// Metrics holds the portal counters. A nil *Metrics records nothing.
type Metrics struct {
	counters map[counter]metric.Int64Counter
}

// NewProvider installs the global meter provider. Disabled export installs a
// no-op provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("deployment.environment", cfg.Environment),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("metrics export enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))
	m := &Metrics{counters: make(map[counter]metric.Int64Counter, len(counterDefs))}
	for id, def := range counterDefs {
		c, err := meter.Int64Counter(def.name, metric.WithDescription(def.description))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.name, err)
		}
		m.counters[id] = c
	}
	return m, nil
}

func (m *Metrics) RecordLogin(ctx context.Context, outcome string) {
	m.add(ctx, loginAttempts, attribute.String("outcome", outcome))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, rateLimitDenials,
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	)
}

func (m *Metrics) RecordWalletTopUp(ctx context.Context, outcome string) {
	m.add(ctx, walletTopUps, attribute.String("outcome", outcome))
}

func (m *Metrics) RecordInvoiceDownload(ctx context.Context, outcome string) {
	m.add(ctx, invoiceDownloads, attribute.String("outcome", outcome))
}

func (m *Metrics) add(ctx context.Context, id counter, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	c, ok := m.counters[id]
	if !ok {
		return
	}
	for i, attr := range attrs {
		attrs[i] = attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString()))
	}
	c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return "billingportal"
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// lowCardinalityKeys are the only labels portal metrics may carry. User and
// invoice ids are dropped.
var lowCardinalityKeys = map[attribute.Key]bool{
	"endpoint":    true,
	"operation":   true,
	"outcome":     true,
	"reason":      true,
	"status_code": true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if lowCardinalityKeys[attr.Key] {
			kept = append(kept, attr)
		}
	}
	return kept
}

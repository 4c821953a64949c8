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
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Metrics exposes application-level OTLP instruments, pushed to a
// collector next to the prometheus pull endpoint.
type Metrics struct {
	settlementEvents metric.Int64Counter
	payoutRequests   metric.Int64Counter
	webhookAllowed   metric.Int64Counter
	webhookDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "meridian"
	}
	meter := provider.Meter(name)

	settlementEvents, err := meter.Int64Counter("meridian_settlement_events_total")
	if err != nil {
		return nil, err
	}
	payoutRequests, err := meter.Int64Counter("meridian_payout_requests_total")
	if err != nil {
		return nil, err
	}
	webhookAllowed, err := meter.Int64Counter("meridian_webhook_allowed_total")
	if err != nil {
		return nil, err
	}
	webhookDenied, err := meter.Int64Counter("meridian_webhook_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		settlementEvents: settlementEvents,
		payoutRequests:   payoutRequests,
		webhookAllowed:   webhookAllowed,
		webhookDenied:    webhookDenied,
	}, nil
}

// RecordSettlementEvent increments settlement outcome counts.
func (m *Metrics) RecordSettlementEvent(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.settlementEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutRequests increments payout request counts.
func (m *Metrics) RecordPayoutRequests(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.payoutRequests.Add(ctx, int64(count))
}

// RecordWebhookAllowed increments webhook admission counts.
func (m *Metrics) RecordWebhookAllowed(ctx context.Context, environment string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("environment", strings.TrimSpace(environment)))
	m.webhookAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookDenied increments webhook rejection counts.
func (m *Metrics) RecordWebhookDenied(ctx context.Context, environment, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("environment", strings.TrimSpace(environment)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.webhookDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":      {},
	"environment": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

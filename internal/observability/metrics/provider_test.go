package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewBuildsInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "meridian", Environment: "test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m == nil {
		t.Fatal("expected instruments")
	}

	ctx := context.Background()
	m.RecordSettlementEvent(ctx, "succeeded")
	m.RecordPayoutRequests(ctx, 3)
	m.RecordWebhookAllowed(ctx, "testnet")
	m.RecordWebhookDenied(ctx, "testnet", "rate_limited")
}

func TestRecordOnNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordSettlementEvent(ctx, "succeeded")
	m.RecordPayoutRequests(ctx, 1)
	m.RecordWebhookAllowed(ctx, "testnet")
	m.RecordWebhookDenied(ctx, "testnet", "rate_limited")
}

func TestFilterAttributesDropsUnknownKeys(t *testing.T) {
	filtered := FilterAttributes(
		attribute.String("status", "succeeded"),
		attribute.String("customer_id", "12345"),
		attribute.String("reason", "rate_limited"),
	)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(filtered))
	}
	for _, attr := range filtered {
		if attr.Key == "customer_id" {
			t.Fatal("high-cardinality key survived the filter")
		}
	}
}

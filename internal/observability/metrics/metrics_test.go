package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("subscription_id", "456"),
		attribute.String("event_type", "payment_failed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "subscription_id" {
			t.Fatalf("expected subscription_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordReconcileEvent(ctx, "native", "payment_failed", "applied", time.Millisecond)
	m.RecordReconcileConflict(ctx, "conflict")
	m.RecordTransition(ctx, "ACTIVE", "PAST_DUE")
	m.RecordBillingRecord(ctx, "PAYMENT")
	m.RecordTaxFallback(ctx, "CA")
	m.RecordRateRefresh(ctx, "error")
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatalf("expected noop metrics")
	}
	m.RecordBillingRecord(context.Background(), "REFUND")
}

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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	reconcileEvents    metric.Int64Counter
	reconcileConflicts metric.Int64Counter
	reconcileDuration  metric.Float64Histogram
	transitions        metric.Int64Counter
	billingRecords     metric.Int64Counter
	taxFallbacks       metric.Int64Counter
	rateRefreshes      metric.Int64Counter
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
		name = "nestbill"
	}
	meter := provider.Meter(name)

	reconcileEvents, err := meter.Int64Counter("nestbill_reconcile_events_total")
	if err != nil {
		return nil, err
	}
	reconcileConflicts, err := meter.Int64Counter("nestbill_reconcile_conflicts_total")
	if err != nil {
		return nil, err
	}
	reconcileDuration, err := meter.Float64Histogram("nestbill_reconcile_duration_seconds")
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("nestbill_subscription_transitions_total")
	if err != nil {
		return nil, err
	}
	billingRecords, err := meter.Int64Counter("nestbill_billing_records_total")
	if err != nil {
		return nil, err
	}
	taxFallbacks, err := meter.Int64Counter("nestbill_tax_jurisdiction_fallback_total")
	if err != nil {
		return nil, err
	}
	rateRefreshes, err := meter.Int64Counter("nestbill_tax_rate_refresh_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reconcileEvents:    reconcileEvents,
		reconcileConflicts: reconcileConflicts,
		reconcileDuration:  reconcileDuration,
		transitions:        transitions,
		billingRecords:     billingRecords,
		taxFallbacks:       taxFallbacks,
		rateRefreshes:      rateRefreshes,
	}, nil
}

// NewNoop returns instruments backed by a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordReconcileEvent counts handled processor events by outcome.
func (m *Metrics) RecordReconcileEvent(ctx context.Context, provider, eventType, result string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.reconcileEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.reconcileDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attrs...))
}

// RecordReconcileConflict counts retried units of work.
func (m *Metrics) RecordReconcileConflict(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.reconcileConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransition counts subscription state changes.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from_status", from),
		attribute.String("to_status", to),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBillingRecord counts persisted billing records.
func (m *Metrics) RecordBillingRecord(ctx context.Context, recordType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("record_type", strings.TrimSpace(recordType)))
	m.billingRecords.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTaxFallback counts computations served by the default jurisdiction.
func (m *Metrics) RecordTaxFallback(ctx context.Context, jurisdiction string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("jurisdiction", strings.TrimSpace(jurisdiction)))
	m.taxFallbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateRefresh counts rate table refresh attempts.
func (m *Metrics) RecordRateRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.rateRefreshes.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"provider":     {},
	"event_type":   {},
	"result":       {},
	"reason":       {},
	"from_status":  {},
	"to_status":    {},
	"record_type":  {},
	"jurisdiction": {},
	"status_code":  {},
	"route":        {},
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

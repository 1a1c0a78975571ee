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
	webhookEvents      metric.Int64Counter
	invoicesFinalized  metric.Int64Counter
	creditNotes        metric.Int64Counter
	sequenceRetries    metric.Int64Counter
	sequenceExhausted  metric.Int64Counter
	registryLookups    metric.Int64Counter
	documentsRendered  metric.Int64Counter
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
		name = "billfold"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("billfold_webhook_events_total")
	if err != nil {
		return nil, err
	}
	invoicesFinalized, err := meter.Int64Counter("billfold_invoices_finalized_total")
	if err != nil {
		return nil, err
	}
	creditNotes, err := meter.Int64Counter("billfold_credit_notes_total")
	if err != nil {
		return nil, err
	}
	sequenceRetries, err := meter.Int64Counter("billfold_sequence_retries_total")
	if err != nil {
		return nil, err
	}
	sequenceExhausted, err := meter.Int64Counter("billfold_sequence_exhausted_total")
	if err != nil {
		return nil, err
	}
	registryLookups, err := meter.Int64Counter("billfold_registry_lookups_total")
	if err != nil {
		return nil, err
	}
	documentsRendered, err := meter.Int64Counter("billfold_documents_rendered_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:     webhookEvents,
		invoicesFinalized: invoicesFinalized,
		creditNotes:       creditNotes,
		sequenceRetries:   sequenceRetries,
		sequenceExhausted: sequenceExhausted,
		registryLookups:   registryLookups,
		documentsRendered: documentsRendered,
	}, nil
}

// RecordWebhookEvent counts one delivered provider event by type and outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceFinalized counts one numbered invoice by customer country.
func (m *Metrics) RecordInvoiceFinalized(ctx context.Context, countryCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("country_code", strings.TrimSpace(countryCode)))
	m.invoicesFinalized.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditNote counts one issued credit note.
func (m *Metrics) RecordCreditNote(ctx context.Context, countryCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("country_code", strings.TrimSpace(countryCode)))
	m.creditNotes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSequenceRetry counts one re-run of the allocation transaction.
func (m *Metrics) RecordSequenceRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.sequenceRetries.Add(ctx, 1)
}

// RecordSequenceExhausted counts one allocation giving up past the retry cap.
func (m *Metrics) RecordSequenceExhausted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sequenceExhausted.Add(ctx, 1)
}

// RecordRegistryLookup counts one VAT registry call by outcome.
func (m *Metrics) RecordRegistryLookup(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.registryLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDocumentRendered counts one generated PDF.
func (m *Metrics) RecordDocumentRendered(ctx context.Context) {
	if m == nil {
		return
	}
	m.documentsRendered.Add(ctx, 1)
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
	"endpoint":     {},
	"status_code":  {},
	"event_type":   {},
	"outcome":      {},
	"country_code": {},
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

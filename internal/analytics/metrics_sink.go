package analytics

import (
	"context"

	"github.com/smallbiznis/billfold/internal/observability/metrics"
	"go.uber.org/fx"
)

// MetricsSink counts finalized documents and credit notes by customer
// country.
type MetricsSink struct {
	metrics *metrics.Metrics
}

type MetricsSinkParams struct {
	fx.In

	Metrics *metrics.Metrics `optional:"true"`
}

func NewMetricsSink(p MetricsSinkParams) *MetricsSink {
	return &MetricsSink{metrics: p.Metrics}
}

func (s *MetricsSink) Deliver(ctx context.Context, event Event) {
	if s.metrics == nil {
		return
	}
	switch event.Kind {
	case EventInvoiceFinalized:
		s.metrics.RecordInvoiceFinalized(ctx, event.CountryCode)
	case EventCreditNoteCreated:
		s.metrics.RecordCreditNote(ctx, event.CountryCode)
	}
}

package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smallbiznis/billfold/internal/config"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"github.com/smallbiznis/billfold/internal/observability/metrics"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.StripeConfig
	Service invoicedomain.Service
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Dispatcher turns verified provider deliveries into lifecycle calls.
type Dispatcher struct {
	secret  string
	svc     invoicedomain.Service
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		secret:  p.Cfg.WebhookSecret,
		svc:     p.Service,
		log:     p.Log.Named("webhook"),
		metrics: p.Metrics,
	}
}

// eventObject is the lean slice of the event payload this system reads.
// Everything else about the object is re-fetched from the provider API, so
// a stale or truncated webhook body cannot poison a snapshot.
type eventObject struct {
	ID      string `json:"id"`
	Invoice string `json:"invoice"`
}

// Handle verifies the delivery and routes it. A nil return means the
// delivery may be acknowledged; an error means the provider should retry.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := stripewebhook.ConstructEvent(payload, signature, d.secret)
	if err != nil {
		d.record(ctx, "unverified", "rejected")
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	kind := kindOf(string(event.Type))
	log := d.log.With(
		zap.String("stripe_event_id", event.ID),
		zap.String("event_type", string(event.Type)),
	)

	if kind == KindIgnored {
		log.Debug("ignoring event type")
		d.record(ctx, string(event.Type), "ignored")
		return nil
	}

	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		d.record(ctx, string(event.Type), "malformed")
		return fmt.Errorf("decode event object: %w", err)
	}

	err = d.route(ctx, kind, event.ID, obj, log)
	if err != nil {
		d.record(ctx, string(event.Type), "failed")
		return err
	}
	d.record(ctx, string(event.Type), "processed")
	return nil
}

func (d *Dispatcher) route(ctx context.Context, kind Kind, eventID string, obj eventObject, log *zap.Logger) error {
	switch kind {
	case KindInvoiceCreated:
		_, err := d.svc.ApplyTax(ctx, obj.ID)
		return err

	case KindPaymentSucceeded:
		inv, err := d.svc.ProcessPayment(ctx, eventID, obj.ID)
		if err != nil {
			return err
		}
		if inv == nil {
			log.Info("no document for settlement")
		}
		return nil

	case KindChargeRefunded:
		if obj.Invoice == "" {
			// One-off charge outside any invoice; nothing to credit.
			log.Info("refunded charge has no invoice")
			return nil
		}
		_, err := d.svc.ProcessRefund(ctx, eventID, obj.Invoice)
		return err

	case KindCreditNoteCreated:
		_, err := d.svc.ProcessCreditNote(ctx, eventID, obj.ID)
		return err
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, eventType, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordWebhookEvent(ctx, eventType, outcome)
	}
}

// Package enrich runs the background pass over finalized business
// invoices: VAT registry lookup, PDF rendering and the customer
// notification mail.
//
// The pass is deliberately decoupled from event processing. Registry
// outages must never delay finalization, so a document gets its number
// first and its consultation identifier whenever the registry answers.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/billfold/internal/clock"
	"github.com/smallbiznis/billfold/internal/config"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"github.com/smallbiznis/billfold/internal/invoice/ledger"
	"github.com/smallbiznis/billfold/internal/invoice/render"
	"github.com/smallbiznis/billfold/internal/observability/metrics"
	"github.com/smallbiznis/billfold/internal/providers/email"
	vatdomain "github.com/smallbiznis/billfold/internal/vat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const batchSize = 50

type Params struct {
	fx.In

	Ledger   *ledger.Ledger
	Registry vatdomain.RegistryLookup
	Renderer *render.Renderer
	Mail     email.Provider
	Clock    clock.Clock
	Log      *zap.Logger
	Cfg      config.BillingConfig
	Metrics  *metrics.Metrics `optional:"true"`
}

type Job struct {
	ledger   *ledger.Ledger
	registry vatdomain.RegistryLookup
	renderer *render.Renderer
	mail     email.Provider
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics

	interval  time.Duration
	sellerVAT string
	seller    string
}

func New(p Params) *Job {
	interval := p.Cfg.EnrichInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Job{
		ledger:    p.Ledger,
		registry:  p.Registry,
		renderer:  p.Renderer,
		mail:      p.Mail,
		clock:     p.Clock,
		log:       p.Log.Named("invoice.enrich"),
		metrics:   p.Metrics,
		interval:  interval,
		sellerVAT: p.Cfg.SellerVATNumber,
		seller:    p.Cfg.SellerName,
	}
}

// RunOnce processes one batch of pending documents. Per-document failures
// are joined and reported; the document stays pending for the next pass.
func (j *Job) RunOnce(ctx context.Context) error {
	pending, err := j.ledger.ListPendingEnrichment(ctx, batchSize)
	if err != nil {
		return err
	}

	var errs error
	for i := range pending {
		inv := &pending[i]
		if err := j.enrichOne(ctx, inv); err != nil {
			j.log.Warn("enrichment deferred",
				zap.String("number", numberOf(inv)),
				zap.Error(err))
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (j *Job) enrichOne(ctx context.Context, inv *invoicedomain.Invoice) error {
	if inv.CustomerVATNumber != "" && inv.ViesRequestIdentifier == "" {
		if err := j.lookupRegistry(ctx, inv); err != nil {
			return err
		}
	}

	pdf, err := j.renderer.Render(inv)
	if err != nil {
		return fmt.Errorf("render %s: %w", numberOf(inv), err)
	}
	if j.metrics != nil {
		j.metrics.RecordDocumentRendered(ctx)
	}

	if inv.CustomerEmail != "" {
		subject := fmt.Sprintf("Invoice %s from %s", numberOf(inv), j.seller)
		if err := j.mail.Send(ctx, []string{inv.CustomerEmail}, subject, notificationBody(inv)); err != nil {
			return fmt.Errorf("mail %s: %w", numberOf(inv), err)
		}
	}

	if err := j.ledger.MarkPDFGenerated(ctx, inv); err != nil {
		return err
	}
	j.log.Info("document enriched",
		zap.String("number", numberOf(inv)),
		zap.Int("pdf_bytes", len(pdf)))
	return nil
}

func (j *Job) lookupRegistry(ctx context.Context, inv *invoicedomain.Invoice) error {
	info, err := j.registry.Lookup(ctx, inv.CustomerVATNumber, j.sellerVAT)
	switch {
	case errors.Is(err, vatdomain.ErrInvalidVATNumber):
		// The number was accepted at snapshot time; a registry rejection
		// now is recorded and does not block the document.
		j.recordLookup(ctx, "invalid")
		j.log.Warn("registry rejected vat number",
			zap.String("number", numberOf(inv)),
			zap.String("vat_number", inv.CustomerVATNumber))
		return nil
	case err != nil:
		j.recordLookup(ctx, "unavailable")
		return fmt.Errorf("registry lookup %s: %w", numberOf(inv), err)
	}

	j.recordLookup(ctx, "ok")
	return j.ledger.SetViesData(ctx, inv, info)
}

func (j *Job) recordLookup(ctx context.Context, outcome string) {
	if j.metrics != nil {
		j.metrics.RecordRegistryLookup(ctx, outcome)
	}
}

// RunForever ticks until the context is canceled.
func (j *Job) RunForever(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil {
			j.log.Warn("enrichment run incomplete", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func notificationBody(inv *invoicedomain.Invoice) string {
	kind := "invoice"
	if inv.CreditNote {
		kind = "credit note"
	}
	return fmt.Sprintf(
		"<p>Your %s <strong>%s</strong> for %s is available.</p>",
		kind, numberOf(inv), moneyText(inv))
}

func moneyText(inv *invoicedomain.Invoice) string {
	major := inv.Total / 100
	minor := inv.Total % 100
	if minor < 0 {
		minor = -minor
	}
	return fmt.Sprintf("%d.%02d %s", major, minor, inv.Currency)
}

func numberOf(inv *invoicedomain.Invoice) string {
	if inv.Number == nil {
		return ""
	}
	return *inv.Number
}

var Module = fx.Module("invoice.enrich",
	fx.Provide(New),
	fx.Invoke(runJob),
)

func runJob(lc fx.Lifecycle, job *Job) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			go job.RunForever(ctx)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}

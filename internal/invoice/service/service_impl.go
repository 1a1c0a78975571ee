// Package service implements the document lifecycle: tax application,
// snapshotting and finalization driven by provider billing events.
//
// Every entry point is idempotent under at-least-once event delivery.
// Processing an event twice, in any interleaving, yields exactly one
// finalized document.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/billfold/internal/analytics"
	"github.com/smallbiznis/billfold/internal/clock"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"github.com/smallbiznis/billfold/internal/invoice/ledger"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
	vatdomain "github.com/smallbiznis/billfold/internal/vat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Ledger    *ledger.Ledger
	Gateway   providerdomain.Gateway
	VAT       vatdomain.Calculator
	Clock     clock.Clock
	Log       *zap.Logger
	Analytics analytics.Publisher
}

type service struct {
	ledger    *ledger.Ledger
	gateway   providerdomain.Gateway
	vat       vatdomain.Calculator
	clock     clock.Clock
	log       *zap.Logger
	analytics analytics.Publisher
}

func NewService(p Params) invoicedomain.Service {
	return &service{
		ledger:    p.Ledger,
		gateway:   p.Gateway,
		vat:       p.VAT,
		clock:     p.Clock,
		log:       p.Log.Named("invoice.service"),
		analytics: p.Analytics,
	}
}

func (s *service) ApplyTax(ctx context.Context, stripeInvoiceID string) (*invoicedomain.Invoice, error) {
	up, err := s.gateway.RetrieveInvoice(ctx, stripeInvoiceID)
	if err != nil {
		return nil, fmt.Errorf("retrieve invoice: %w", err)
	}

	draft, err := s.ledger.FindOrCreate(ctx, &invoicedomain.Invoice{
		StripeID:             &up.ID,
		StripeCustomerID:     up.CustomerID,
		StripeSubscriptionID: up.SubscriptionID,
	})
	if err != nil {
		return nil, err
	}
	if draft.AddedVAT {
		return draft, nil
	}

	cust, err := s.gateway.RetrieveCustomer(ctx, up.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("retrieve customer: %w", err)
	}

	subtotal, _ := splitLines(up.Lines)
	base := subtotal - couponDiscount(up.Coupon, subtotal)
	calc := s.vat.Calculate(base, cust.CountryCode, cust.VATRegistered)

	if calc.Amount > 0 {
		err := s.gateway.AddVATLine(ctx, up.CustomerID, up.ID, calc.Amount, calc.Rate, up.Currency)
		switch {
		case errors.Is(err, providerdomain.ErrInvoiceImmutable):
			// Paid before we got here. The payment path computes the same
			// amounts from the lines it finds, so nothing is lost.
			s.log.Info("invoice no longer editable, skipping tax line",
				zap.String("stripe_invoice_id", up.ID))
		case err != nil:
			return nil, fmt.Errorf("add vat line: %w", err)
		}
	}

	if err := s.ledger.MarkVATApplied(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *service) ProcessPayment(ctx context.Context, stripeEventID, stripeInvoiceID string) (*invoicedomain.Invoice, error) {
	up, err := s.gateway.RetrieveInvoice(ctx, stripeInvoiceID)
	if err != nil {
		return nil, fmt.Errorf("retrieve invoice: %w", err)
	}

	// Trial and plan-change invoices settle for nothing, whether their
	// lines are absent or all zero; they never receive a document number.
	if up.Total == 0 {
		s.log.Info("skipping zero-total invoice",
			zap.String("stripe_invoice_id", up.ID),
			zap.String("stripe_event_id", stripeEventID))
		return nil, nil
	}

	row, err := s.ledger.FindOrCreate(ctx, &invoicedomain.Invoice{
		StripeID:             &up.ID,
		StripeCustomerID:     up.CustomerID,
		StripeSubscriptionID: up.SubscriptionID,
	})
	if err != nil {
		return nil, err
	}
	if row.Finalized() {
		// Duplicate delivery. The first processing won; return its result.
		return row, nil
	}

	cust, err := s.gateway.RetrieveCustomer(ctx, up.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("retrieve customer: %w", err)
	}

	var charge *providerdomain.Charge
	if up.ChargeID != "" {
		charge, err = s.gateway.RetrieveCharge(ctx, up.ChargeID)
		if err != nil {
			return nil, fmt.Errorf("retrieve charge: %w", err)
		}
	}

	rate := s.vat.Rate(cust.CountryCode, cust.VATRegistered)
	snap := buildSnapshot(stripeEventID, up, cust, charge, rate)
	if err := s.ledger.UpdateSnapshot(ctx, row, snap); err != nil {
		return nil, err
	}

	if err := s.ledger.Finalize(ctx, row); err != nil {
		if errors.Is(err, invoicedomain.ErrAlreadyFinalized) {
			// Lost a race against a concurrent delivery of the same event.
			if err := s.ledger.Reload(ctx, row); err != nil {
				return nil, err
			}
			return row, nil
		}
		return nil, err
	}

	if err := s.ledger.MarkProcessed(ctx, row); err != nil {
		return nil, err
	}

	s.log.Info("invoice finalized",
		zap.String("number", *row.Number),
		zap.String("stripe_invoice_id", up.ID),
		zap.Int64("total", row.Total),
		zap.String("currency", row.Currency))
	s.analytics.Publish(analytics.Event{
		Kind:         analytics.EventInvoiceFinalized,
		Number:       *row.Number,
		Total:        row.Total,
		Currency:     row.Currency,
		CountryCode:  row.CustomerCountryCode,
		AccountingID: row.CustomerAccountingID,
	})
	return row, nil
}

func (s *service) ProcessRefund(ctx context.Context, stripeEventID, stripeInvoiceID string) (*invoicedomain.Invoice, error) {
	if existing, err := s.creditNoteForEvent(ctx, stripeEventID); existing != nil || err != nil {
		return existing, err
	}

	orig, err := s.ledger.FindOriginal(ctx, stripeInvoiceID)
	if err != nil {
		return nil, err
	}
	if orig == nil {
		return nil, fmt.Errorf("%w: invoice %s", invoicedomain.ErrOrphanRefund, stripeInvoiceID)
	}

	// A refund credits the full original document. There is no provider
	// credit-note object to key on, so the event id takes the provider-id
	// slot and its unique index makes double processing impossible.
	cn := newCreditNote(orig, stripeEventID)
	cn.StripeID = &stripeEventID
	cn.Subtotal = -orig.Subtotal
	cn.DiscountAmount = -orig.DiscountAmount
	cn.SubtotalAfterDiscount = -orig.SubtotalAfterDiscount
	cn.VATAmount = -orig.VATAmount
	cn.Total = -orig.Total

	if err := s.ledger.CreateFinalized(ctx, cn); err != nil {
		return nil, err
	}
	s.publishCreditNote(cn)
	return cn, nil
}

func (s *service) ProcessCreditNote(ctx context.Context, stripeEventID, stripeCreditNoteID string) (*invoicedomain.Invoice, error) {
	if existing, err := s.creditNoteForEvent(ctx, stripeEventID); existing != nil || err != nil {
		return existing, err
	}

	up, err := s.gateway.RetrieveCreditNote(ctx, stripeCreditNoteID)
	if err != nil {
		return nil, fmt.Errorf("retrieve credit note: %w", err)
	}

	orig, err := s.ledger.FindOriginal(ctx, up.InvoiceID)
	if err != nil {
		return nil, err
	}
	if orig == nil {
		return nil, fmt.Errorf("%w: invoice %s", invoicedomain.ErrOrphanRefund, up.InvoiceID)
	}

	// The credited total is gross. The tax share is back-computed from the
	// rate stored on the original, never from the customer's current
	// jurisdiction.
	vat := creditVATPortion(up.Total, orig.VATRate)
	net := up.Total - vat

	cn := newCreditNote(orig, stripeEventID)
	cn.StripeID = &up.ID
	cn.Subtotal = -net
	cn.SubtotalAfterDiscount = -net
	cn.VATAmount = -vat
	cn.Total = -up.Total
	if up.Currency != "" {
		cn.Currency = up.Currency
	}

	if err := s.ledger.CreateFinalized(ctx, cn); err != nil {
		return nil, err
	}
	s.publishCreditNote(cn)
	return cn, nil
}

func (s *service) CreateSubscription(ctx context.Context, opts providerdomain.SubscriptionOptions) (*providerdomain.Subscription, error) {
	cust, err := s.gateway.RetrieveCustomer(ctx, opts.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("retrieve customer: %w", err)
	}
	price, err := s.gateway.RetrievePrice(ctx, opts.PriceID)
	if err != nil {
		return nil, fmt.Errorf("retrieve price: %w", err)
	}

	// The first invoice of a subscription is charged the moment it is
	// created, too late for the invoice.created hook to edit it. The tax
	// line goes in ahead of time as a pending item the provider folds
	// into that first invoice.
	calc := s.vat.Calculate(price.Amount, cust.CountryCode, cust.VATRegistered)
	if calc.Amount > 0 && opts.TrialDays == 0 {
		if err := s.gateway.AddVATLine(ctx, opts.CustomerID, "", calc.Amount, calc.Rate, price.Currency); err != nil {
			return nil, fmt.Errorf("pre-apply vat: %w", err)
		}
	}

	sub, err := s.gateway.CreateSubscription(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	// Register the resulting invoice now so the payment event finds a
	// draft with the vat flag already set.
	up, err := s.gateway.LatestInvoice(ctx, opts.CustomerID)
	if err != nil && !errors.Is(err, providerdomain.ErrNotFound) {
		return nil, fmt.Errorf("latest invoice: %w", err)
	}
	if up != nil {
		draft, err := s.ledger.FindOrCreate(ctx, &invoicedomain.Invoice{
			StripeID:             &up.ID,
			StripeCustomerID:     up.CustomerID,
			StripeSubscriptionID: sub.ID,
		})
		if err != nil {
			return nil, err
		}
		if err := s.ledger.MarkVATApplied(ctx, draft); err != nil {
			return nil, err
		}
	}

	s.analytics.Publish(analytics.Event{
		Kind:         analytics.EventSubscriptionOpened,
		Total:        price.Amount + calc.Amount,
		Currency:     price.Currency,
		CountryCode:  cust.CountryCode,
		AccountingID: cust.AccountingID,
	})
	return sub, nil
}

func (s *service) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	return s.ledger.List(ctx, req)
}

func (s *service) GetByNumber(ctx context.Context, number string) (*invoicedomain.Invoice, error) {
	return s.ledger.GetByNumber(ctx, number)
}

func (s *service) Reserve(ctx context.Context) (*invoicedomain.Invoice, error) {
	inv, err := s.ledger.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("number reserved", zap.String("number", *inv.Number))
	return inv, nil
}

func (s *service) creditNoteForEvent(ctx context.Context, eventID string) (*invoicedomain.Invoice, error) {
	existing, err := s.ledger.FindCreditNoteByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Info("duplicate credit event, returning existing credit note",
			zap.String("stripe_event_id", eventID),
			zap.String("number", *existing.Number))
	}
	return existing, nil
}

// newCreditNote copies the customer and jurisdiction snapshot from the
// original document onto a fresh credit note referencing it.
func newCreditNote(orig *invoicedomain.Invoice, eventID string) *invoicedomain.Invoice {
	return &invoicedomain.Invoice{
		StripeEventID:        &eventID,
		StripeCustomerID:     orig.StripeCustomerID,
		StripeSubscriptionID: orig.StripeSubscriptionID,

		CreditNote:      true,
		ReferenceNumber: orig.Number,

		VATRate:  orig.VATRate,
		Currency: orig.Currency,
		Interval: orig.Interval,

		CardBrand:       orig.CardBrand,
		CardLast4:       orig.CardLast4,
		CardCountryCode: orig.CardCountryCode,

		CustomerEmail:         orig.CustomerEmail,
		CustomerName:          orig.CustomerName,
		CustomerCompanyName:   orig.CustomerCompanyName,
		CustomerCountryCode:   orig.CustomerCountryCode,
		CustomerAddress:       orig.CustomerAddress,
		CustomerVATRegistered: orig.CustomerVATRegistered,
		CustomerVATNumber:     orig.CustomerVATNumber,
		CustomerAccountingID:  orig.CustomerAccountingID,
	}
}

func (s *service) publishCreditNote(cn *invoicedomain.Invoice) {
	s.log.Info("credit note created",
		zap.String("number", *cn.Number),
		zap.Stringp("reference", cn.ReferenceNumber),
		zap.Int64("total", cn.Total))
	s.analytics.Publish(analytics.Event{
		Kind:         analytics.EventCreditNoteCreated,
		Number:       *cn.Number,
		Total:        cn.Total,
		Currency:     cn.Currency,
		CountryCode:  cn.CustomerCountryCode,
		AccountingID: cn.CustomerAccountingID,
	})
}

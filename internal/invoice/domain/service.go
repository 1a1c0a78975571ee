package domain

import (
	"context"
	"time"

	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
)

// ListRequest filters the read API. Results are ordered newest first.
type ListRequest struct {
	AccountingID    *string
	FinalizedBefore *time.Time
	FinalizedAfter  *time.Time
}

// Service drives a document through tax application, snapshotting and
// finalization in response to provider billing events.
type Service interface {
	// ApplyTax attaches a VAT line to the upstream invoice and marks the
	// ledger row. Idempotent; an upstream "no longer editable" outcome is
	// treated as already applied.
	ApplyTax(ctx context.Context, stripeInvoiceID string) (*Invoice, error)

	// ProcessPayment snapshots and finalizes the document for a paid
	// upstream invoice. Returns (nil, nil) for zero-value trial invoices.
	// Duplicate deliveries of the same event return the existing
	// finalized document.
	ProcessPayment(ctx context.Context, stripeEventID, stripeInvoiceID string) (*Invoice, error)

	// ProcessRefund derives a full credit note from a refunded charge's
	// invoice. Fails with ErrOrphanRefund when the original is unknown.
	ProcessRefund(ctx context.Context, stripeEventID, stripeInvoiceID string) (*Invoice, error)

	// ProcessCreditNote derives a (possibly partial) credit note from an
	// upstream credit note object.
	ProcessCreditNote(ctx context.Context, stripeEventID, stripeCreditNoteID string) (*Invoice, error)

	// CreateSubscription pre-applies VAT to the upcoming invoice, starts
	// the provider subscription, then snapshots the resulting invoice.
	CreateSubscription(ctx context.Context, opts providerdomain.SubscriptionOptions) (*providerdomain.Subscription, error)

	List(ctx context.Context, req ListRequest) ([]Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)

	// Reserve carves out the next sequence number with an empty, finalized
	// placeholder row.
	Reserve(ctx context.Context) (*Invoice, error)
}

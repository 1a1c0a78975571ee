// Package domain defines the contract between the invoice lifecycle and the
// upstream payment provider.
package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Line is a single billing line on an upstream invoice, amounts in cents.
type Line struct {
	ID          string
	Amount      int64
	Currency    string
	Description string

	// VAT marks the tax line this system attached earlier in the
	// invoice's life.
	VAT bool
}

// Coupon describes a discount attached to an upstream invoice. Exactly one
// of PercentOff/AmountOff is meaningful.
type Coupon struct {
	ID         string
	PercentOff decimal.Decimal
	AmountOff  int64
	Currency   string
}

// Invoice is the provider's view of a billing document.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	ChargeID       string
	Lines          []Line
	Subtotal       int64
	Total          int64
	Currency       string
	Interval       string
	Coupon         *Coupon
	Paid           bool
}

// Charge carries the payment-method snapshot for a settled invoice.
type Charge struct {
	ID          string
	CardBrand   string
	CardLast4   string
	CardCountry string
}

// Customer is the jurisdiction and identity metadata kept upstream.
type Customer struct {
	ID            string
	Email         string
	Name          string
	CompanyName   string
	CountryCode   string
	Address       string
	VATNumber     string
	VATRegistered bool
	AccountingID  string
}

// CreditNote is an upstream partial or full credit against an invoice.
type CreditNote struct {
	ID        string
	InvoiceID string
	Total     int64
	Currency  string
	Lines     []Line
}

// Price describes a recurring price used when starting a subscription.
type Price struct {
	ID       string
	Amount   int64
	Currency string
	Interval string
}

// Subscription is the handle returned after subscribing a customer.
type Subscription struct {
	ID         string
	CustomerID string
	PriceID    string
}

// SubscriptionOptions are the caller-supplied options for CreateSubscription.
type SubscriptionOptions struct {
	CustomerID string
	PriceID    string
	TrialDays  int64
}

// Gateway is the payment-provider boundary the lifecycle service consumes.
// Implementations map provider errors to the sentinels in errors.go.
type Gateway interface {
	RetrieveInvoice(ctx context.Context, id string) (*Invoice, error)
	LatestInvoice(ctx context.Context, customerID string) (*Invoice, error)
	RetrieveCharge(ctx context.Context, id string) (*Charge, error)
	RetrieveCustomer(ctx context.Context, id string) (*Customer, error)
	RetrieveCreditNote(ctx context.Context, id string) (*CreditNote, error)
	RetrievePrice(ctx context.Context, id string) (*Price, error)

	// AddVATLine attaches a tax line to a not-yet-paid upstream invoice.
	// Returns ErrInvoiceImmutable when the invoice can no longer be
	// edited; callers treat that as already applied.
	AddVATLine(ctx context.Context, customerID, invoiceID string, amount int64, rate decimal.Decimal, currency string) error

	CreateSubscription(ctx context.Context, opts SubscriptionOptions) (*Subscription, error)
}

// Package domain contains the invoice ledger record and its contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Invoice is one ledger document: an invoice or a credit note.
//
// A row is created as a draft when the first event referencing a provider
// invoice arrives. Financial and customer fields are snapshots written at
// or before finalization; after finalized_at is set they are never
// mutated, only auxiliary fields (pdf_generated_at, processed_at,
// metadata) may still change.
type Invoice struct {
	ID snowflake.ID `gorm:"primaryKey"`

	// Provider identities. StripeEventID is the idempotency key of the
	// event that finalized this document.
	StripeEventID        *string `gorm:"column:stripe_event_id;index"`
	StripeID             *string `gorm:"column:stripe_id;uniqueIndex:ux_invoices_stripe_id"`
	StripeCustomerID     string  `gorm:"column:stripe_customer_id;index"`
	StripeSubscriptionID string  `gorm:"column:stripe_subscription_id"`

	// Numbering. A number, once assigned, is never reused even if the
	// row is deleted; uniqueness is enforced by the database.
	Year           int     `gorm:"uniqueIndex:ux_invoices_year_sequence"`
	SequenceNumber int     `gorm:"uniqueIndex:ux_invoices_year_sequence"`
	Number         *string `gorm:"uniqueIndex:ux_invoices_number"`

	// Lifecycle.
	AddedVAT       bool       `gorm:"column:added_vat;not null;default:false"`
	FinalizedAt    *time.Time `gorm:"index"`
	ReservedAt     *time.Time
	ProcessedAt    *time.Time
	PDFGeneratedAt *time.Time `gorm:"column:pdf_generated_at"`

	// Credit notes.
	CreditNote      bool    `gorm:"not null;default:false"`
	ReferenceNumber *string `gorm:"index"`

	// Financial snapshot, amounts in cents.
	Subtotal              int64
	DiscountAmount        int64
	SubtotalAfterDiscount int64
	VATAmount             int64           `gorm:"column:vat_amount"`
	VATRate               decimal.Decimal `gorm:"column:vat_rate;type:numeric(6,3)"`
	Total                 int64
	Currency              string `gorm:"type:text"`
	Interval              string `gorm:"type:text"`

	// Card used to pay.
	CardBrand       string `gorm:"type:text"`
	CardLast4       string `gorm:"type:text"`
	CardCountryCode string `gorm:"type:text"`

	// Customer snapshot, copied at finalization so later profile edits
	// cannot retroactively alter the document.
	CustomerEmail         string `gorm:"type:text"`
	CustomerName          string `gorm:"type:text"`
	CustomerCompanyName   string `gorm:"type:text"`
	CustomerCountryCode   string `gorm:"type:text"`
	CustomerAddress       string `gorm:"type:text"`
	CustomerVATRegistered bool   `gorm:"column:customer_vat_registered;not null;default:false"`
	CustomerVATNumber     string `gorm:"column:customer_vat_number;type:text"`
	CustomerAccountingID  string `gorm:"column:customer_accounting_id;type:text;index"`

	// VAT registry (VIES) enrichment.
	ViesCompanyName       string `gorm:"column:vies_company_name;type:text"`
	ViesAddress           string `gorm:"column:vies_address;type:text"`
	ViesRequestIdentifier string `gorm:"column:vies_request_identifier;type:text"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) Finalized() bool { return i.FinalizedAt != nil }

func (i *Invoice) Reserved() bool { return i.ReservedAt != nil }

// Snapshot is the immutable financial and customer state written wholesale
// before finalization. It is always applied as a full column set so the
// write does not depend on any change tracking.
type Snapshot struct {
	StripeEventID        *string
	StripeCustomerID     string
	StripeSubscriptionID string

	Subtotal              int64
	DiscountAmount        int64
	SubtotalAfterDiscount int64
	VATAmount             int64
	VATRate               decimal.Decimal
	Total                 int64
	Currency              string
	Interval              string

	CardBrand       string
	CardLast4       string
	CardCountryCode string

	CustomerEmail         string
	CustomerName          string
	CustomerCompanyName   string
	CustomerCountryCode   string
	CustomerAddress       string
	CustomerVATRegistered bool
	CustomerVATNumber     string
	CustomerAccountingID  string
}

// Apply copies the snapshot onto the in-memory row.
func (s Snapshot) Apply(inv *Invoice) {
	if s.StripeEventID != nil {
		inv.StripeEventID = s.StripeEventID
	}
	inv.StripeCustomerID = s.StripeCustomerID
	inv.StripeSubscriptionID = s.StripeSubscriptionID
	inv.Subtotal = s.Subtotal
	inv.DiscountAmount = s.DiscountAmount
	inv.SubtotalAfterDiscount = s.SubtotalAfterDiscount
	inv.VATAmount = s.VATAmount
	inv.VATRate = s.VATRate
	inv.Total = s.Total
	inv.Currency = s.Currency
	inv.Interval = s.Interval
	inv.CardBrand = s.CardBrand
	inv.CardLast4 = s.CardLast4
	inv.CardCountryCode = s.CardCountryCode
	inv.CustomerEmail = s.CustomerEmail
	inv.CustomerName = s.CustomerName
	inv.CustomerCompanyName = s.CustomerCompanyName
	inv.CustomerCountryCode = s.CustomerCountryCode
	inv.CustomerAddress = s.CustomerAddress
	inv.CustomerVATRegistered = s.CustomerVATRegistered
	inv.CustomerVATNumber = s.CustomerVATNumber
	inv.CustomerAccountingID = s.CustomerAccountingID
}

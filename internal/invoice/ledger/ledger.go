// Package ledger owns document numbering and all persistence for invoice
// rows. Sequence allocation runs inside serializable transactions with a
// bounded retry loop; ties between concurrent allocations are resolved by
// retrying the whole read-compute-write block, never by reusing a stale
// sequence read.
//
// This favors simplicity and crash-safety over throughput: one allocation
// happens per paid document, so contention is rare. Sustained high
// concurrent invoice volume would need a dedicated allocator (a
// single-row counter with row-level locking) instead.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billfold/internal/clock"
	"github.com/smallbiznis/billfold/internal/config"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"github.com/smallbiznis/billfold/internal/invoice/format"
	"github.com/smallbiznis/billfold/internal/observability/metrics"
	vatdomain "github.com/smallbiznis/billfold/internal/vat/domain"
	"github.com/smallbiznis/billfold/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.BillingConfig
	Metrics *metrics.Metrics `optional:"true"`
}

type Ledger struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics

	template string
	retry    db.RetryConfig
}

func New(p Params) *Ledger {
	template := p.Cfg.NumberTemplate
	if template == "" {
		template = format.DefaultNumberTemplate
	}

	return &Ledger{
		db:       p.DB,
		log:      p.Log.Named("invoice.ledger"),
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
		template: template,
		retry: db.RetryConfig{
			MaxAttempts: p.Cfg.SequenceMaxAttempts,
			Backoff:     p.Cfg.SequenceBackoff,
		},
	}
}

// allocRetry derives the per-call retry policy, counting each re-run.
func (l *Ledger) allocRetry(ctx context.Context) db.RetryConfig {
	cfg := l.retry
	if l.metrics != nil {
		cfg.OnRetry = func() { l.metrics.RecordSequenceRetry(ctx) }
	}
	return cfg
}

// FindOrCreate returns the row for draft.StripeID, inserting a new draft
// when none exists. Concurrent calls with the same id race on the unique
// index; the loser's insert is a no-op and both return the single row.
func (l *Ledger) FindOrCreate(ctx context.Context, draft *invoicedomain.Invoice) (*invoicedomain.Invoice, error) {
	if draft.StripeID == nil || *draft.StripeID == "" {
		return nil, fmt.Errorf("find or create requires a provider invoice id")
	}

	if draft.ID == 0 {
		draft.ID = l.genID.Generate()
	}
	now := l.clock.Now()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_id"}},
		DoNothing: true,
	}).Create(draft).Error
	if err != nil && !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	return l.findOne(ctx, "stripe_id = ?", *draft.StripeID)
}

// Finalize assigns the next (year, sequence, number) triple and stamps
// finalized_at. Finalizing twice is an error, not a silent success.
func (l *Ledger) Finalize(ctx context.Context, inv *invoicedomain.Invoice) error {
	if inv.Finalized() {
		return invoicedomain.ErrAlreadyFinalized
	}

	var (
		year        int
		sequence    int
		number      string
		finalizedAt time.Time
	)

	err := db.RunSerializable(ctx, l.db, l.allocRetry(ctx), func(tx *gorm.DB) error {
		now := l.clock.Now()
		seq, num, err := l.nextSequence(tx, now.Year())
		if err != nil {
			return err
		}

		res := tx.Exec(
			`UPDATE invoices
			 SET year = ?, sequence_number = ?, number = ?, finalized_at = ?, updated_at = ?
			 WHERE id = ? AND finalized_at IS NULL`,
			now.Year(), seq, num, now, now, inv.ID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invoicedomain.ErrAlreadyFinalized
		}

		year, sequence, number, finalizedAt = now.Year(), seq, num, now
		return nil
	})
	if err != nil {
		return l.mapAllocationErr(ctx, err)
	}

	inv.Year = year
	inv.SequenceNumber = sequence
	inv.Number = &number
	inv.FinalizedAt = &finalizedAt
	return nil
}

// CreateFinalized inserts a brand-new row and allocates its number in the
// same transaction. Used for credit notes, which are never left in draft.
func (l *Ledger) CreateFinalized(ctx context.Context, inv *invoicedomain.Invoice) error {
	if inv.Finalized() {
		return invoicedomain.ErrAlreadyFinalized
	}
	if inv.ID == 0 {
		inv.ID = l.genID.Generate()
	}

	err := db.RunSerializable(ctx, l.db, l.allocRetry(ctx), func(tx *gorm.DB) error {
		now := l.clock.Now()
		seq, num, err := l.nextSequence(tx, now.Year())
		if err != nil {
			return err
		}

		inv.Year = now.Year()
		inv.SequenceNumber = seq
		inv.Number = &num
		inv.FinalizedAt = &now
		inv.CreatedAt = now
		inv.UpdatedAt = now

		return tx.Create(inv).Error
	})
	if err != nil {
		// The insert never ran or was rolled back; clear the allocation
		// so the row cannot be mistaken for finalized.
		inv.Number = nil
		inv.FinalizedAt = nil
		return l.mapAllocationErr(ctx, err)
	}
	return nil
}

// Reserve carves out the next number with an empty placeholder row,
// finalized immediately with no financial content.
func (l *Ledger) Reserve(ctx context.Context) (*invoicedomain.Invoice, error) {
	now := l.clock.Now()
	inv := &invoicedomain.Invoice{
		ID:         l.genID.Generate(),
		ReservedAt: &now,
	}
	if err := l.CreateFinalized(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// NextSequence previews the next allocation for a year without claiming
// it. The authoritative read happens again inside the allocating
// transaction.
func (l *Ledger) NextSequence(ctx context.Context, year int) (int, string, error) {
	return l.nextSequence(l.db.WithContext(ctx), year)
}

// nextSequence reads the highest assigned sequence for the year and adds
// one. Ties are broken by sequence number, never by finalization
// timestamps, so pre-existing rows finalized in the same instant cannot
// confuse the allocator.
func (l *Ledger) nextSequence(tx *gorm.DB, year int) (int, string, error) {
	var maxSeq int64
	err := tx.Raw(
		`SELECT COALESCE(MAX(sequence_number), 0)
		 FROM invoices
		 WHERE year = ? AND number IS NOT NULL`,
		year,
	).Scan(&maxSeq).Error
	if err != nil {
		return 0, "", err
	}

	seq := int(maxSeq) + 1
	number, err := format.Number(l.template, year, seq)
	if err != nil {
		return 0, "", err
	}
	return seq, number, nil
}

// MarkVATApplied sets the monotonic added_vat flag.
func (l *Ledger) MarkVATApplied(ctx context.Context, inv *invoicedomain.Invoice) error {
	now := l.clock.Now()
	err := l.db.WithContext(ctx).Exec(
		`UPDATE invoices SET added_vat = TRUE, updated_at = ? WHERE id = ?`,
		now, inv.ID,
	).Error
	if err != nil {
		return err
	}
	inv.AddedVAT = true
	return nil
}

// UpdateSnapshot writes the full snapshot column set wholesale. Finalized
// rows are immutable; a write against one is skipped, which is the benign
// duplicate-delivery case.
func (l *Ledger) UpdateSnapshot(ctx context.Context, inv *invoicedomain.Invoice, snap invoicedomain.Snapshot) error {
	now := l.clock.Now()
	res := l.db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			stripe_event_id = COALESCE(?, stripe_event_id),
			stripe_customer_id = ?,
			stripe_subscription_id = ?,
			subtotal = ?,
			discount_amount = ?,
			subtotal_after_discount = ?,
			vat_amount = ?,
			vat_rate = ?,
			total = ?,
			currency = ?,
			interval = ?,
			card_brand = ?,
			card_last4 = ?,
			card_country_code = ?,
			customer_email = ?,
			customer_name = ?,
			customer_company_name = ?,
			customer_country_code = ?,
			customer_address = ?,
			customer_vat_registered = ?,
			customer_vat_number = ?,
			customer_accounting_id = ?,
			updated_at = ?
		 WHERE id = ? AND finalized_at IS NULL`,
		snap.StripeEventID,
		snap.StripeCustomerID,
		snap.StripeSubscriptionID,
		snap.Subtotal,
		snap.DiscountAmount,
		snap.SubtotalAfterDiscount,
		snap.VATAmount,
		snap.VATRate,
		snap.Total,
		snap.Currency,
		snap.Interval,
		snap.CardBrand,
		snap.CardLast4,
		snap.CardCountryCode,
		snap.CustomerEmail,
		snap.CustomerName,
		snap.CustomerCompanyName,
		snap.CustomerCountryCode,
		snap.CustomerAddress,
		snap.CustomerVATRegistered,
		snap.CustomerVATNumber,
		snap.CustomerAccountingID,
		now, inv.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		snap.Apply(inv)
		inv.UpdatedAt = now
	}
	return nil
}

// FindByStripeID returns the row for a provider invoice id, or nil.
func (l *Ledger) FindByStripeID(ctx context.Context, stripeID string) (*invoicedomain.Invoice, error) {
	return l.findOneOrNil(ctx, "stripe_id = ?", stripeID)
}

// FindOriginal locates the finalized, non-credit-note document a refund
// or credit refers to.
func (l *Ledger) FindOriginal(ctx context.Context, stripeID string) (*invoicedomain.Invoice, error) {
	return l.findOneOrNil(ctx,
		"stripe_id = ? AND finalized_at IS NOT NULL AND credit_note = ?", stripeID, false)
}

// FindCreditNoteByEventID returns an existing credit note derived from the
// given provider event, for duplicate-delivery detection.
func (l *Ledger) FindCreditNoteByEventID(ctx context.Context, eventID string) (*invoicedomain.Invoice, error) {
	return l.findOneOrNil(ctx,
		"stripe_event_id = ? AND credit_note = ?", eventID, true)
}

func (l *Ledger) GetByNumber(ctx context.Context, number string) (*invoicedomain.Invoice, error) {
	inv, err := l.findOneOrNil(ctx, "number = ?", number)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return inv, nil
}

// List returns documents newest first, optionally filtered.
func (l *Ledger) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	query := l.db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if req.AccountingID != nil {
		query = query.Where("customer_accounting_id = ?", *req.AccountingID)
	}
	if req.FinalizedBefore != nil {
		query = query.Where("finalized_at < ?", *req.FinalizedBefore)
	}
	if req.FinalizedAfter != nil {
		query = query.Where("finalized_at > ?", *req.FinalizedAfter)
	}

	var out []invoicedomain.Invoice
	if err := query.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListPendingEnrichment returns finalized business invoices still waiting
// for registry data and a rendered PDF.
func (l *Ledger) ListPendingEnrichment(ctx context.Context, limit int) ([]invoicedomain.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []invoicedomain.Invoice
	err := l.db.WithContext(ctx).
		Where("pdf_generated_at IS NULL AND reserved_at IS NULL AND credit_note = ? AND finalized_at IS NOT NULL", false).
		Order("finalized_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetViesData stores registry lookup results on the row.
func (l *Ledger) SetViesData(ctx context.Context, inv *invoicedomain.Invoice, info vatdomain.RegistryInfo) error {
	now := l.clock.Now()
	err := l.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET vies_company_name = ?, vies_address = ?, vies_request_identifier = ?, updated_at = ?
		 WHERE id = ?`,
		info.Name, info.Address, info.RequestIdentifier, now, inv.ID,
	).Error
	if err != nil {
		return err
	}
	inv.ViesCompanyName = info.Name
	inv.ViesAddress = info.Address
	inv.ViesRequestIdentifier = info.RequestIdentifier
	return nil
}

// MarkProcessed stamps processed_at once event handling for the document
// completed. Auxiliary metadata, allowed after finalization.
func (l *Ledger) MarkProcessed(ctx context.Context, inv *invoicedomain.Invoice) error {
	now := l.clock.Now()
	err := l.db.WithContext(ctx).Exec(
		`UPDATE invoices SET processed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, inv.ID,
	).Error
	if err != nil {
		return err
	}
	inv.ProcessedAt = &now
	return nil
}

// MarkPDFGenerated stamps pdf_generated_at. Auxiliary metadata, allowed
// after finalization.
func (l *Ledger) MarkPDFGenerated(ctx context.Context, inv *invoicedomain.Invoice) error {
	now := l.clock.Now()
	err := l.db.WithContext(ctx).Exec(
		`UPDATE invoices SET pdf_generated_at = ?, updated_at = ? WHERE id = ?`,
		now, now, inv.ID,
	).Error
	if err != nil {
		return err
	}
	inv.PDFGeneratedAt = &now
	return nil
}

// Reload refreshes the in-memory row from the database.
func (l *Ledger) Reload(ctx context.Context, inv *invoicedomain.Invoice) error {
	fresh, err := l.findOne(ctx, "id = ?", inv.ID)
	if err != nil {
		return err
	}
	*inv = *fresh
	return nil
}

func (l *Ledger) findOne(ctx context.Context, cond string, args ...any) (*invoicedomain.Invoice, error) {
	inv, err := l.findOneOrNil(ctx, cond, args...)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return inv, nil
}

func (l *Ledger) findOneOrNil(ctx context.Context, cond string, args ...any) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := l.db.WithContext(ctx).Where(cond, args...).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (l *Ledger) mapAllocationErr(ctx context.Context, err error) error {
	if errors.Is(err, db.ErrRetryExhausted) {
		l.log.Error("sequence allocation exhausted retries", zap.Error(err))
		if l.metrics != nil {
			l.metrics.RecordSequenceExhausted(ctx)
		}
		return fmt.Errorf("%w: %v", invoicedomain.ErrSequenceExhausted, err)
	}
	return err
}

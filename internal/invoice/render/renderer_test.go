package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billfold/internal/config"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"go.uber.org/zap"
)

func testRenderer() *Renderer {
	return NewRenderer(Params{
		Cfg: config.BillingConfig{
			SellerName:      "Billfold BV",
			SellerAddress:   "Kerkstraat 1, 1000 Brussels",
			SellerVATNumber: "BE0123456789",
			SellerEmail:     "billing@billfold.example",
		},
		Log: zap.NewNop(),
	})
}

func finalizedInvoice() *invoicedomain.Invoice {
	number := "2026.7"
	finalized := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	return &invoicedomain.Invoice{
		ID:                    1,
		Number:                &number,
		Year:                  2026,
		SequenceNumber:        7,
		FinalizedAt:           &finalized,
		Subtotal:              1000,
		SubtotalAfterDiscount: 1000,
		VATAmount:             210,
		VATRate:               decimal.NewFromInt(21),
		Total:                 1210,
		Currency:              "eur",
		Interval:              "month",
		CustomerName:          "Jan Jans",
		CustomerEmail:         "jan@example.com",
		CustomerCountryCode:   "BE",
	}
}

func TestRenderInvoice(t *testing.T) {
	out, err := testRenderer().Render(finalizedInvoice())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected pdf bytes")
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output is not a pdf, starts with %q", out[:8])
	}
}

func TestRenderCreditNote(t *testing.T) {
	inv := finalizedInvoice()
	ref := *inv.Number
	number := "2026.8"
	inv.Number = &number
	inv.CreditNote = true
	inv.ReferenceNumber = &ref
	inv.Subtotal = -1000
	inv.SubtotalAfterDiscount = -1000
	inv.VATAmount = -210
	inv.Total = -1210

	out, err := testRenderer().Render(inv)
	if err != nil {
		t.Fatalf("render credit note: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected pdf bytes")
	}
}

func TestRenderRejectsDraftAndReserved(t *testing.T) {
	if _, err := testRenderer().Render(&invoicedomain.Invoice{}); err == nil {
		t.Fatalf("expected error for draft")
	}

	inv := finalizedInvoice()
	now := time.Now()
	inv.ReservedAt = &now
	if _, err := testRenderer().Render(inv); err == nil {
		t.Fatalf("expected error for reserved placeholder")
	}
}

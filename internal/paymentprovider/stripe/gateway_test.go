package stripe

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
)

func TestMapInvoiceSplitsVATLine(t *testing.T) {
	inv := &stripeapi.Invoice{
		ID:       "in_1",
		Subtotal: 1210,
		Total:    1210,
		Currency: "eur",
		Status:   stripeapi.InvoiceStatusPaid,
		Customer: &stripeapi.Customer{ID: "cus_1"},
		Lines: &stripeapi.InvoiceLineItemList{
			Data: []*stripeapi.InvoiceLineItem{
				{ID: "il_1", Amount: 1000, Currency: "eur", Description: "Pro plan"},
				{ID: "il_2", Amount: 210, Currency: "eur", Description: "VAT (21%)",
					Metadata: map[string]string{vatLineMetadataKey: "true"}},
			},
		},
	}

	out := mapInvoice(inv)

	if out.CustomerID != "cus_1" {
		t.Fatalf("unexpected customer id %q", out.CustomerID)
	}
	if !out.Paid {
		t.Fatal("expected paid invoice")
	}
	if len(out.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(out.Lines))
	}
	if out.Lines[0].VAT || !out.Lines[1].VAT {
		t.Fatalf("vat flags wrong: %+v", out.Lines)
	}
}

func TestMapInvoiceCoupon(t *testing.T) {
	inv := &stripeapi.Invoice{
		ID:    "in_1",
		Total: 750,
		Discounts: []*stripeapi.Discount{
			{Coupon: &stripeapi.Coupon{ID: "co_1", PercentOff: 25}},
		},
	}

	out := mapInvoice(inv)

	if out.Coupon == nil {
		t.Fatal("expected coupon")
	}
	if !out.Coupon.PercentOff.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected percent off %s", out.Coupon.PercentOff)
	}
}

func TestMapCustomerCountryFallbacks(t *testing.T) {
	// Explicit metadata wins.
	out := mapCustomer(&stripeapi.Customer{
		ID:       "cus_1",
		Metadata: map[string]string{"country_code": "be", "vat_number": "NL000000000B01"},
	})
	if out.CountryCode != "BE" {
		t.Fatalf("expected BE, got %q", out.CountryCode)
	}

	// Then the VAT number prefix.
	out = mapCustomer(&stripeapi.Customer{
		ID:       "cus_2",
		Metadata: map[string]string{"vat_number": "NL000000000B01"},
	})
	if out.CountryCode != "NL" {
		t.Fatalf("expected NL, got %q", out.CountryCode)
	}

	// Then the billing address.
	out = mapCustomer(&stripeapi.Customer{
		ID:      "cus_3",
		Address: &stripeapi.Address{Country: "fr"},
	})
	if out.CountryCode != "FR" {
		t.Fatalf("expected FR, got %q", out.CountryCode)
	}
}

func TestIntervalFromPeriod(t *testing.T) {
	const day = int64(86400)

	cases := []struct {
		days int64
		want string
	}{
		{365, "year"},
		{30, "month"},
		{28, "month"},
		{7, "week"},
		{1, "day"},
		{0, ""},
	}
	for _, tc := range cases {
		if got := intervalFromPeriod(0, tc.days*day); got != tc.want {
			t.Errorf("intervalFromPeriod(%d days) = %q, want %q", tc.days, got, tc.want)
		}
	}
}

func TestMapError(t *testing.T) {
	err := mapError(&stripeapi.Error{HTTPStatusCode: 404, Code: stripeapi.ErrorCodeResourceMissing})
	if !errors.Is(err, providerdomain.ErrNotFound) {
		t.Fatalf("expected not-found mapping, got %v", err)
	}

	err = mapError(&stripeapi.Error{Type: stripeapi.ErrorTypeInvalidRequest, Msg: "Invoice is no longer editable"})
	if !errors.Is(err, providerdomain.ErrInvoiceImmutable) {
		t.Fatalf("expected immutable mapping, got %v", err)
	}

	plain := errors.New("transport down")
	if got := mapError(plain); got != plain {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

package service

import (
	"testing"

	"github.com/shopspring/decimal"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLines(t *testing.T) {
	subtotal, vat := splitLines([]providerdomain.Line{
		{Amount: 1000},
		{Amount: 500},
		{Amount: 315, VAT: true},
	})

	assert.Equal(t, int64(1500), subtotal)
	assert.Equal(t, int64(315), vat)
}

func TestCouponDiscountPercent(t *testing.T) {
	coupon := &providerdomain.Coupon{PercentOff: decimal.NewFromInt(25)}

	assert.Equal(t, int64(250), couponDiscount(coupon, 1000))
	// Half cents round half up.
	assert.Equal(t, int64(250), couponDiscount(coupon, 999))
}

func TestCouponDiscountAmountOffClamped(t *testing.T) {
	coupon := &providerdomain.Coupon{AmountOff: 1500}

	assert.Equal(t, int64(1000), couponDiscount(coupon, 1000))
	assert.Equal(t, int64(0), couponDiscount(nil, 1000))
}

func TestCreditVATPortion(t *testing.T) {
	// 605 gross at 21% contains 105 tax.
	assert.Equal(t, int64(105), creditVATPortion(605, decimal.NewFromInt(21)))
	assert.Equal(t, int64(0), creditVATPortion(605, decimal.Zero))
}

func TestBuildSnapshotReconcilesRounding(t *testing.T) {
	up := &providerdomain.Invoice{
		ID:         "in_1",
		CustomerID: "cus_1",
		Currency:   "eur",
		Coupon:     &providerdomain.Coupon{PercentOff: decimal.NewFromInt(25)},
		Lines: []providerdomain.Line{
			{Amount: 999},
			{Amount: 157, VAT: true},
		},
		// Provider charged one cent less than our coupon math would give.
		Total: 906,
	}

	snap := buildSnapshot("evt_1", up, nil, nil, decimal.NewFromInt(21))

	require.NotNil(t, snap.StripeEventID)
	assert.Equal(t, "evt_1", *snap.StripeEventID)
	assert.Equal(t, snap.Total, snap.Subtotal-snap.DiscountAmount+snap.VATAmount)
	assert.Equal(t, int64(999), snap.Subtotal)
	assert.Equal(t, int64(906), snap.Total)
	assert.Equal(t, snap.SubtotalAfterDiscount, snap.Subtotal-snap.DiscountAmount)
}

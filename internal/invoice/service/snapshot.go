package service

import (
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
)

var oneHundred = decimal.NewFromInt(100)

// buildSnapshot derives the immutable financial state stored on a
// finalized document from the provider's invoice, customer and charge.
//
// The provider's total is authoritative: rounding drift between our
// coupon arithmetic and the provider's is reconciled into the discount so
// that subtotal - discount + vat == total holds exactly on every stored
// row.
func buildSnapshot(eventID string, up *providerdomain.Invoice, cust *providerdomain.Customer, charge *providerdomain.Charge, rate decimal.Decimal) invoicedomain.Snapshot {
	subtotal, vatAmount := splitLines(up.Lines)

	discount := couponDiscount(up.Coupon, subtotal)
	if residual := subtotal - discount + vatAmount - up.Total; residual != 0 {
		discount += residual
	}

	snap := invoicedomain.Snapshot{
		StripeEventID:        &eventID,
		StripeCustomerID:     up.CustomerID,
		StripeSubscriptionID: up.SubscriptionID,

		Subtotal:              subtotal,
		DiscountAmount:        discount,
		SubtotalAfterDiscount: subtotal - discount,
		VATAmount:             vatAmount,
		VATRate:               rate,
		Total:                 up.Total,
		Currency:              up.Currency,
		Interval:              up.Interval,
	}

	if charge != nil {
		snap.CardBrand = charge.CardBrand
		snap.CardLast4 = charge.CardLast4
		snap.CardCountryCode = charge.CardCountry
	}
	if cust != nil {
		snap.CustomerEmail = cust.Email
		snap.CustomerName = cust.Name
		snap.CustomerCompanyName = cust.CompanyName
		snap.CustomerCountryCode = cust.CountryCode
		snap.CustomerAddress = cust.Address
		snap.CustomerVATRegistered = cust.VATRegistered
		snap.CustomerVATNumber = cust.VATNumber
		snap.CustomerAccountingID = cust.AccountingID
	}
	return snap
}

// splitLines separates the customer's billing lines from the tax line
// this system attached earlier.
func splitLines(lines []providerdomain.Line) (subtotal, vat int64) {
	for _, line := range lines {
		if line.VAT {
			vat += line.Amount
		} else {
			subtotal += line.Amount
		}
	}
	return subtotal, vat
}

func couponDiscount(coupon *providerdomain.Coupon, subtotal int64) int64 {
	if coupon == nil {
		return 0
	}
	if !coupon.PercentOff.IsZero() {
		return decimal.NewFromInt(subtotal).
			Mul(coupon.PercentOff).
			Div(oneHundred).
			Round(0).
			IntPart()
	}
	if coupon.AmountOff > subtotal {
		return subtotal
	}
	if coupon.AmountOff > 0 {
		return coupon.AmountOff
	}
	return 0
}

// creditVATPortion back-computes the tax share of a gross credited amount
// using the rate stored on the original document.
func creditVATPortion(gross int64, rate decimal.Decimal) int64 {
	if rate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(gross).
		Mul(rate).
		Div(rate.Add(oneHundred)).
		Round(0).
		IntPart()
}

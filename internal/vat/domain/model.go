// Package domain contains the VAT calculation and registry lookup contracts.
package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Calculation is the result of applying a VAT rate to an amount in cents.
type Calculation struct {
	// Amount of VAT payable, rounded half up to the cent.
	Amount int64

	// Rate is the applied percentage, e.g. 21 for Belgian VAT.
	Rate decimal.Decimal
}

// RegistryInfo is the data returned by the EU VAT registry (VIES) for a
// registered business.
type RegistryInfo struct {
	Name              string
	Address           string
	RequestIdentifier string
}

// Calculator resolves VAT rates from customer jurisdiction metadata.
//
// taxRegistered means the customer holds a VAT registration number, i.e. is
// a business customer subject to reverse-charge rules.
type Calculator interface {
	Rate(countryCode string, taxRegistered bool) decimal.Decimal
	Calculate(amount int64, countryCode string, taxRegistered bool) Calculation
}

// RegistryLookup validates a VAT number against the official registry.
// requesterVATNumber, when set, asks the registry for a request identifier
// that proves the lookup happened (consultation number).
type RegistryLookup interface {
	Lookup(ctx context.Context, vatNumber, requesterVATNumber string) (RegistryInfo, error)
}

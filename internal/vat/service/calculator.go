package service

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billfold/internal/config"
	vatdomain "github.com/smallbiznis/billfold/internal/vat/domain"
)

var oneHundred = decimal.NewFromInt(100)

// Calculator is a pure, stateless VAT calculator. Jurisdiction settings are
// passed in at construction; nothing is read from ambient globals.
type Calculator struct {
	homeCountry string
	registered  map[string]struct{}
}

func NewCalculator(cfg config.BillingConfig) vatdomain.Calculator {
	registered := make(map[string]struct{}, len(cfg.RegisteredCountries)+1)
	home := strings.ToUpper(strings.TrimSpace(cfg.HomeCountry))
	if home != "" {
		registered[home] = struct{}{}
	}
	for _, c := range cfg.RegisteredCountries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			registered[c] = struct{}{}
		}
	}

	return &Calculator{
		homeCountry: home,
		registered:  registered,
	}
}

// Rate resolves the applicable VAT percentage.
//
// Customers in a country the seller collects tax in always pay that
// country's statutory rate. EU consumers without a VAT registration pay
// their own country's statutory rate. EU businesses outside the seller's
// registrations fall under reverse charge, and everyone outside the EU
// pays no VAT here.
func (c *Calculator) Rate(countryCode string, taxRegistered bool) decimal.Decimal {
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	if country == "" {
		return decimal.Zero
	}

	statutory, eu := standardRates[country]
	if !eu {
		return decimal.Zero
	}

	if _, ok := c.registered[country]; ok {
		return decimal.NewFromInt(statutory)
	}
	if !taxRegistered {
		return decimal.NewFromInt(statutory)
	}
	return decimal.Zero
}

// Calculate applies the resolved rate to an amount in cents, rounding the
// VAT amount half up to the nearest cent.
func (c *Calculator) Calculate(amount int64, countryCode string, taxRegistered bool) vatdomain.Calculation {
	rate := c.Rate(countryCode, taxRegistered)
	vat := decimal.NewFromInt(amount).Mul(rate).Div(oneHundred).Round(0)

	return vatdomain.Calculation{
		Amount: vat.IntPart(),
		Rate:   rate,
	}
}

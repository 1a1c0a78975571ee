package service

import (
	"testing"

	"github.com/smallbiznis/billfold/internal/config"
)

func newTestCalculator() *Calculator {
	calc := NewCalculator(config.BillingConfig{HomeCountry: "BE"})
	return calc.(*Calculator)
}

func TestCalculateMatrix(t *testing.T) {
	calc := newTestCalculator()

	cases := []struct {
		amount     int64
		country    string
		registered bool
		want       int64
	}{
		{100, "US", true, 0},
		{100, "US", false, 0},
		{100, "FR", true, 0},
		{100, "FR", false, 20},
		{100, "BE", false, 21},
		{100, "BE", true, 21},
		{100, "", false, 0},
		{100, "XX", false, 0},
	}

	for _, tc := range cases {
		got := calc.Calculate(tc.amount, tc.country, tc.registered)
		if got.Amount != tc.want {
			t.Errorf("Calculate(%d, %q, %v) = %d, want %d",
				tc.amount, tc.country, tc.registered, got.Amount, tc.want)
		}
	}
}

func TestCalculateRounding(t *testing.T) {
	calc := newTestCalculator()

	// 2010 * 21% = 422.1, rounds half up to 422.
	got := calc.Calculate(2010, "BE", true)
	if got.Amount != 422 {
		t.Fatalf("Calculate(2010, BE, true) = %d, want 422", got.Amount)
	}
	if !got.Rate.Equal(calc.Rate("BE", true)) {
		t.Fatalf("rate mismatch: %s", got.Rate)
	}

	// 105 * 21% = 22.05, rounds half up to 22.
	got = calc.Calculate(105, "BE", false)
	if got.Amount != 22 {
		t.Fatalf("Calculate(105, BE, false) = %d, want 22", got.Amount)
	}

	// 50 * 21% = 10.5, half up lands on 11.
	got = calc.Calculate(50, "BE", false)
	if got.Amount != 11 {
		t.Fatalf("Calculate(50, BE, false) = %d, want 11", got.Amount)
	}
}

func TestRegisteredCountries(t *testing.T) {
	calc := NewCalculator(config.BillingConfig{
		HomeCountry:         "BE",
		RegisteredCountries: []string{"NL"},
	}).(*Calculator)

	// Registered in NL, so Dutch businesses pay Dutch VAT instead of
	// falling under reverse charge.
	if got := calc.Calculate(100, "NL", true); got.Amount != 21 {
		t.Fatalf("Calculate(100, NL, true) = %d, want 21", got.Amount)
	}
	if got := calc.Calculate(100, "DE", true); got.Amount != 0 {
		t.Fatalf("Calculate(100, DE, true) = %d, want 0", got.Amount)
	}
}

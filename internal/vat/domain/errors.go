package domain

import "errors"

var (
	// ErrRegistryUnavailable means the VIES service is down or overloaded.
	// Callers defer enrichment and retry on a later pass; it never blocks
	// finalization.
	ErrRegistryUnavailable = errors.New("registry_unavailable")

	ErrInvalidVATNumber = errors.New("invalid_vat_number")
)

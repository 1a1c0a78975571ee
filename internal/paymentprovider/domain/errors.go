package domain

import "errors"

var (
	// ErrInvoiceImmutable means the upstream invoice can no longer be
	// edited (it was paid immediately, common with subscription-create
	// invoices). The tax-application path treats this as benign.
	ErrInvoiceImmutable = errors.New("invoice_immutable")

	ErrNotFound = errors.New("provider_object_not_found")
)

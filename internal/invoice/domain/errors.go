package domain

import "errors"

var (
	// ErrAlreadyFinalized is raised when finalizing a document twice.
	// ProcessPayment treats it as idempotent success; every other caller
	// propagates it.
	ErrAlreadyFinalized = errors.New("already_finalized")

	// ErrOrphanRefund is a refund or credit event whose original invoice
	// this ledger has no record of.
	ErrOrphanRefund = errors.New("orphan_refund")

	// ErrSequenceExhausted means sequence allocation kept colliding past
	// the retry cap. Fatal for the event; the number is never allocated
	// through an unsafe fallback.
	ErrSequenceExhausted = errors.New("sequence_exhausted")

	ErrNotFound = errors.New("not_found")
)

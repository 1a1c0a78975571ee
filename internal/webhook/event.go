// Package webhook verifies and dispatches provider event deliveries.
package webhook

import "errors"

// Kind classifies the provider event types this system reacts to. Anything
// else is acknowledged and dropped, because an unacknowledged delivery is
// retried forever.
type Kind string

const (
	KindInvoiceCreated    Kind = "invoice.created"
	KindPaymentSucceeded  Kind = "invoice.payment_succeeded"
	KindChargeRefunded    Kind = "charge.refunded"
	KindCreditNoteCreated Kind = "credit_note.created"
	KindIgnored           Kind = "ignored"
)

func kindOf(eventType string) Kind {
	switch Kind(eventType) {
	case KindInvoiceCreated, KindPaymentSucceeded, KindChargeRefunded, KindCreditNoteCreated:
		return Kind(eventType)
	default:
		return KindIgnored
	}
}

// ErrInvalidSignature covers a missing, malformed, stale or forged
// Stripe-Signature header. Deliveries failing verification are rejected
// before any payload field is trusted.
var ErrInvalidSignature = errors.New("invalid_webhook_signature")

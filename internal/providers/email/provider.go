// Package email sends outbound notification mail.
package email

import "context"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// NoOpProvider is used when no SMTP host is configured; sends are dropped.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(_ context.Context, _ []string, _ string, _ string) error {
	return nil
}

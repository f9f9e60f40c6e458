// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/smtp-send-lite/internal/email"
)

// Provider is the dispatcher boundary: it hands an assembled message to a
// delivery service (SMTP relay, SES, Microsoft Graph, or stdout for dry runs).
type Provider interface {
	// Send delivers msg and returns the delivery receipt.
	// Errors are returned as reported by the underlying service.
	Send(ctx context.Context, msg *email.Message) (*email.Receipt, error)

	// Name returns the human-readable name of this provider.
	Name() string
}

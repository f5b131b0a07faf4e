// Package processor talks to the external payment processor. Services depend
// only on the Client interface; the Stripe implementation lives in stripe.go.
package processor

import "context"

// Intent statuses reported by the processor that the coordinator branches on.
// Any other status is treated as a decline.
const (
	IntentStatusSucceeded      = "succeeded"
	IntentStatusRequiresAction = "requires_action"
)

// Intent is the processor's representation of an in-progress charge attempt.
type Intent struct {
	ID           string
	Status       string
	ClientSecret string
}

// Refund is the processor's record of a refund against an intent.
type Refund struct {
	ID     string
	Amount int64
	Status string
}

// Client is the synchronous interface to the payment processor. Amounts are
// in minor units (cents).
type Client interface {
	CreateIntent(ctx context.Context, amount int64, currency, paymentMethodID string, metadata map[string]string) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
	CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (Refund, error)
}

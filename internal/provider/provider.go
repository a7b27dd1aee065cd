package provider

import (
	"context"
	"errors"
)

// Order is the authoritative view of a provider order. Amounts come from the
// provider's API, never from webhook payloads.
type Order struct {
	ID           string
	AmountCents  int64
	Status       string
	PayerCountry string
}

var (
	// ErrOrderNotFound indicates the provider has no record of the order.
	ErrOrderNotFound = errors.New("provider: order not found")
	// ErrProviderUnavailable indicates a transient provider failure; callers
	// should surface a retryable error so the event is redelivered.
	ErrProviderUnavailable = errors.New("provider: unavailable")
)

// Reconciler fetches the authoritative state of an order from the payment
// provider. Implementations must bound the call with a timeout.
type Reconciler interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

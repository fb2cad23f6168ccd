// Package payment talks to the hosted checkout provider. It knows nothing about carts or
// sessions: callers hand it fully priced line items in minor currency units.
package payment

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by providers missing credentials.
var ErrNotConfigured = errors.New("payment: provider not configured")

// LineItem is one priced entry of a hosted checkout.
type LineItem struct {
	Name string
	// UnitAmount is the unit price in minor currency units (pence for gbp).
	UnitAmount int64
	Quantity   int64
}

// CheckoutRequest describes a one-off payment checkout.
type CheckoutRequest struct {
	Currency        string
	Items           []LineItem
	SuccessURL      string
	CancelURL       string
	ClientReference string
	IdempotencyKey  string
}

// Amount is the request total in minor units.
func (r CheckoutRequest) Amount() int64 {
	var total int64
	for _, it := range r.Items {
		total += it.UnitAmount * it.Quantity
	}
	return total
}

// CheckoutSession is the provider's handle for a hosted checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// Provider abstracts the hosted checkout operations used by the storefront.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CheckoutSessionPaid(ctx context.Context, sessionID string) (bool, error)
}

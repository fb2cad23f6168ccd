// Package checkout turns a reconciled cart into a hosted payment checkout and tracks the
// checkout lifecycle (building, submitted, succeeded, cancelled) in the user's session.
package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/payment"
)

var (
	// ErrNoItems means there is nothing to pay for; callers send the user back to the cart.
	ErrNoItems = errors.New("checkout: cart has no items")
	// ErrInvalidAmount is returned for negative prices or non-positive quantities.
	ErrInvalidAmount = errors.New("checkout: invalid amount")
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major-unit price to minor units, rounding half to even.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Mul(hundred).RoundBank(0).IntPart()
}

// BuildRequest converts reconciled line items into a provider request, preserving item order.
// URLs and references are left for the caller to fill in.
func BuildRequest(items []cart.LineItem, currency string) (payment.CheckoutRequest, error) {
	if len(items) == 0 {
		return payment.CheckoutRequest{}, ErrNoItems
	}
	req := payment.CheckoutRequest{
		Currency: strings.ToLower(strings.TrimSpace(currency)),
		Items:    make([]payment.LineItem, 0, len(items)),
	}
	for _, it := range items {
		if it.Product.Price.IsNegative() || it.Quantity <= 0 {
			return payment.CheckoutRequest{}, fmt.Errorf("%w: product %d", ErrInvalidAmount, it.Product.ID)
		}
		req.Items = append(req.Items, payment.LineItem{
			Name:       it.Product.Name,
			UnitAmount: MinorUnits(it.Product.Price),
			Quantity:   int64(it.Quantity),
		})
	}
	return req, nil
}

package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested product does not exist.
var ErrNotFound = errors.New("catalog: product not found")

// Product is the public product record. Price is held in major currency units with two decimals.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

// PriceString renders the price with exactly two fractional digits.
func (p Product) PriceString() string {
	return p.Price.StringFixed(2)
}

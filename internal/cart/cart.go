// Package cart implements the session-scoped shopping cart: quantity arithmetic over a
// product id -> quantity mapping, reconciliation against the catalog, and the HTTP handlers
// that load the cart from the session and write it back.
package cart

import (
	"encoding/json"
	"sort"
	"strconv"
)

// DefaultQty is the quantity used when a request does not specify one.
const DefaultQty = 1

// Cart maps product ids to quantities. Entries never hold a quantity below one.
type Cart map[int64]int

// New returns an empty cart.
func New() Cart {
	return Cart{}
}

// Clone returns an independent copy of c. A nil cart clones to an empty one.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for id, qty := range c {
		out[id] = qty
	}
	return out
}

// Add returns a copy of c with qty added to the product's quantity. qty may be negative;
// when the resulting quantity is zero or less the entry is removed.
func (c Cart) Add(productID int64, qty int) Cart {
	out := c.Clone()
	next := out[productID] + qty
	if next <= 0 || productID <= 0 {
		delete(out, productID)
		return out
	}
	out[productID] = next
	return out
}

// Set returns a copy of c with the product's quantity set to exactly qty. qty <= 0 removes it.
func (c Cart) Set(productID int64, qty int) Cart {
	out := c.Clone()
	if qty <= 0 || productID <= 0 {
		delete(out, productID)
		return out
	}
	out[productID] = qty
	return out
}

// Without returns a copy of c without the given products.
func (c Cart) Without(ids ...int64) Cart {
	out := c.Clone()
	for _, id := range ids {
		delete(out, id)
	}
	return out
}

// Count is the sum of all quantities.
func (c Cart) Count() int {
	total := 0
	for _, qty := range c {
		total += qty
	}
	return total
}

// IDs returns the product ids in ascending order.
func (c Cart) IDs() []int64 {
	ids := make([]int64, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MarshalJSON encodes the cart as an object keyed by the decimal product id.
func (c Cart) MarshalJSON() ([]byte, error) {
	raw := make(map[string]int, len(c))
	for id, qty := range c {
		raw[strconv.FormatInt(id, 10)] = qty
	}
	return json.Marshal(raw)
}

// Decode parses a stored cart. Entries with malformed ids or non-positive quantities are
// dropped; undecodable input yields an empty cart.
func Decode(data []byte) Cart {
	out := New()
	if len(data) == 0 {
		return out
	}
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return out
	}
	for key, qty := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 || qty <= 0 {
			continue
		}
		out[id] = qty
	}
	return out
}

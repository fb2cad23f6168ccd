package cart

import (
	"encoding/json"
)

// SessionStore is the session capability the cart needs: read and write the cart field and
// flag the session as modified so it gets persisted.
type SessionStore interface {
	CartData() ([]byte, bool)
	SetCartData(data []byte)
	MarkModified()
}

// Get returns the session's cart, or an empty cart when none is stored.
func Get(s SessionStore) Cart {
	if s == nil {
		return New()
	}
	data, ok := s.CartData()
	if !ok {
		return New()
	}
	return Decode(data)
}

// Save writes c to the session and marks it modified.
func Save(s SessionStore, c Cart) {
	if s == nil {
		return
	}
	if c == nil {
		c = New()
	}
	data, err := json.Marshal(c)
	if err != nil {
		// map[string]int always encodes
		data = []byte("{}")
	}
	s.SetCartData(data)
	s.MarkModified()
}

// Add increments the product's quantity by qty and persists the result.
func Add(s SessionStore, productID int64, qty int) Cart {
	c := Get(s).Add(productID, qty)
	Save(s, c)
	return c
}

// SetQty sets the product's quantity to qty (qty <= 0 removes it) and persists the result.
func SetQty(s SessionStore, productID int64, qty int) Cart {
	c := Get(s).Set(productID, qty)
	Save(s, c)
	return c
}

// Clear replaces the cart with an empty one.
func Clear(s SessionStore) Cart {
	c := New()
	Save(s, c)
	return c
}

// Count is the total quantity in the session's cart.
func Count(s SessionStore) int {
	return Get(s).Count()
}

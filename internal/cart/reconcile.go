package cart

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/obs"
)

// Catalog resolves product ids in bulk, omitting ids that do not exist.
type Catalog interface {
	FindByIDs(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
}

// LineItem is a priced cart entry.
type LineItem struct {
	Product   catalog.Product
	Quantity  int
	LineTotal decimal.Decimal
}

// Reconciliation is the outcome of resolving a cart against the catalog.
type Reconciliation struct {
	Items []LineItem
	Total decimal.Decimal
	// Cart is the input cart minus entries whose product no longer exists.
	Cart   Cart
	Pruned bool
}

// Zero is the zero currency amount with two fractional digits.
func Zero() decimal.Decimal {
	return decimal.New(0, -2)
}

// Reconcile prices every cart entry and drops entries whose product is gone. Items are
// ordered by product id. c itself is never modified.
func Reconcile(ctx context.Context, c Cart, lookup Catalog) (Reconciliation, error) {
	out := Reconciliation{Total: Zero(), Cart: c.Clone()}
	if len(c) == 0 {
		return out, nil
	}
	ids := c.IDs()
	products, err := lookup.FindByIDs(ctx, ids)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("resolve cart products: %w", err)
	}
	out.Items = make([]LineItem, 0, len(ids))
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			delete(out.Cart, id)
			out.Pruned = true
			continue
		}
		qty := c[id]
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(qty)))
		out.Total = out.Total.Add(lineTotal)
		out.Items = append(out.Items, LineItem{Product: p, Quantity: qty, LineTotal: lineTotal})
	}
	return out, nil
}

// ReconcileSession reconciles the session's cart and writes the pruned cart back when stale
// entries were removed.
func ReconcileSession(ctx context.Context, s SessionStore, lookup Catalog) (Reconciliation, error) {
	rec, err := Reconcile(ctx, Get(s), lookup)
	if err != nil {
		return Reconciliation{}, err
	}
	if rec.Pruned {
		Save(s, rec.Cart)
		if obs.CartPrunedTotal != nil {
			obs.CartPrunedTotal.Inc()
		}
	}
	return rec, nil
}

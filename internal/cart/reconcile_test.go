package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/session"
)

type fakeCatalog struct {
	products map[int64]catalog.Product
	calls    int
	err      error
}

func (f *fakeCatalog) FindByIDs(_ context.Context, ids []int64) (map[int64]catalog.Product, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func crystals() *fakeCatalog {
	return &fakeCatalog{products: map[int64]catalog.Product{
		1: {ID: 1, Name: "Amethyst Point Crystal 50-60mm", Price: decimal.RequireFromString("18.00")},
		2: {ID: 2, Name: "Rose Quartz Crystal Point", Price: decimal.RequireFromString("16.00")},
		4: {ID: 4, Name: "Citrine Crystal 20g", Price: decimal.RequireFromString("9.50")},
	}}
}

func TestReconcileTotals(t *testing.T) {
	lookup := crystals()
	rec, err := cart.Reconcile(context.Background(), cart.Cart{1: 2, 2: 3}, lookup)
	require.NoError(t, err)

	require.Len(t, rec.Items, 2)
	require.False(t, rec.Pruned)
	require.Equal(t, 1, lookup.calls)
	require.True(t, rec.Total.Equal(decimal.RequireFromString("84.00")))
	require.Equal(t, "84.00", rec.Total.StringFixed(2))
	require.Equal(t, "36.00", rec.Items[0].LineTotal.StringFixed(2))
	require.Equal(t, "48.00", rec.Items[1].LineTotal.StringFixed(2))
}

func TestReconcileEmptyCartSkipsLookup(t *testing.T) {
	lookup := crystals()
	rec, err := cart.Reconcile(context.Background(), cart.New(), lookup)
	require.NoError(t, err)
	require.Empty(t, rec.Items)
	require.True(t, rec.Total.IsZero())
	require.False(t, rec.Pruned)
	require.Zero(t, lookup.calls)
}

func TestReconcilePrunesUnknownProducts(t *testing.T) {
	in := cart.Cart{1: 1, 99: 4}
	rec, err := cart.Reconcile(context.Background(), in, crystals())
	require.NoError(t, err)

	require.True(t, rec.Pruned)
	require.Equal(t, cart.Cart{1: 1}, rec.Cart)
	require.Equal(t, cart.Cart{1: 1, 99: 4}, in)
	require.Equal(t, "18.00", rec.Total.StringFixed(2))
}

func TestReconcileOnlyUnknownProducts(t *testing.T) {
	rec, err := cart.Reconcile(context.Background(), cart.Cart{98: 1, 99: 2}, crystals())
	require.NoError(t, err)
	require.Empty(t, rec.Items)
	require.True(t, rec.Total.IsZero())
	require.True(t, rec.Pruned)
	require.Empty(t, rec.Cart)
}

func TestReconcileLookupErrorLeavesSessionAlone(t *testing.T) {
	sess := session.New("s1")
	cart.Add(sess, 1, 1)
	before, _ := sess.CartData()

	boom := errors.New("database down")
	_, err := cart.ReconcileSession(context.Background(), sess, &fakeCatalog{err: boom})
	require.ErrorIs(t, err, boom)

	after, _ := sess.CartData()
	require.Equal(t, before, after)
}

func TestReconcileSessionPersistsPruning(t *testing.T) {
	sess := session.New("s1")
	cart.Add(sess, 2, 1)
	cart.Add(sess, 77, 1)

	rec, err := cart.ReconcileSession(context.Background(), sess, crystals())
	require.NoError(t, err)
	require.True(t, rec.Pruned)
	require.Equal(t, cart.Cart{2: 1}, cart.Get(sess))
}

func TestReconcileSmallestUnitPrice(t *testing.T) {
	rec, err := cart.Reconcile(context.Background(), cart.Cart{4: 3}, crystals())
	require.NoError(t, err)
	require.Equal(t, "28.50", rec.Total.StringFixed(2))
}

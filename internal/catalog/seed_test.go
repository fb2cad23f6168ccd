package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/catalog"
)

type memUpserter struct {
	rows map[string]decimal.Decimal
	ids  map[string]int64
	err  error
}

func (m *memUpserter) Upsert(_ context.Context, name string, price decimal.Decimal, _ string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if _, ok := m.ids[name]; !ok {
		m.ids[name] = int64(len(m.ids) + 1)
	}
	m.rows[name] = price
	return m.ids[name], nil
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := &memUpserter{rows: map[string]decimal.Decimal{}, ids: map[string]int64{}}

	first, err := catalog.Seed(context.Background(), repo, catalog.DemoCatalog)
	require.NoError(t, err)
	second, err := catalog.Seed(context.Background(), repo, catalog.DemoCatalog)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, repo.rows, 5)
	require.True(t, repo.rows["Citrine Crystal 20g"].Equal(decimal.RequireFromString("9.50")))
}

func TestSeedRejectsBadInput(t *testing.T) {
	repo := &memUpserter{rows: map[string]decimal.Decimal{}, ids: map[string]int64{}}
	_, err := catalog.Seed(context.Background(), repo, []catalog.SeedProduct{{Name: "x", Price: "-1.00"}})
	require.Error(t, err)
	_, err = catalog.Seed(context.Background(), repo, []catalog.SeedProduct{{Name: "x", Price: "abc"}})
	require.Error(t, err)

	repo.err = errors.New("db down")
	_, err = catalog.Seed(context.Background(), repo, catalog.DemoCatalog)
	require.ErrorContains(t, err, "db down")
}

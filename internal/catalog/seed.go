package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Upserter inserts or updates a product by name.
type Upserter interface {
	Upsert(ctx context.Context, name string, price decimal.Decimal, description string) (int64, error)
}

// SeedProduct is one entry of the demo catalog.
type SeedProduct struct {
	Name        string
	Price       string
	Description string
}

// DemoCatalog is the crystal range loaded by the seeder.
var DemoCatalog = []SeedProduct{
	{Name: "Amethyst Point Crystal 50-60mm", Price: "18.00", Description: "Polished amethyst point, approx 50–60mm."},
	{Name: "Rose Quartz Crystal Point", Price: "16.00", Description: "Rose quartz point, gentle pink tone."},
	{Name: "Black Tourmaline Assorted", Price: "12.00", Description: "Assorted black tourmaline pieces for grounding."},
	{Name: "Citrine Crystal 20g", Price: "9.50", Description: "Citrine crystal, approx 20g."},
	{Name: "Aquamarine raw", Price: "22.00", Description: "Raw aquamarine specimen."},
}

// Seed upserts every product, returning the ids keyed by name. Running it twice
// leaves a single row per name.
func Seed(ctx context.Context, repo Upserter, products []SeedProduct) (map[string]int64, error) {
	ids := make(map[string]int64, len(products))
	for _, p := range products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("seed %q: parse price: %w", p.Name, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("seed %q: negative price", p.Name)
		}
		id, err := repo.Upsert(ctx, p.Name, price, p.Description)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", p.Name, err)
		}
		ids[p.Name] = id
	}
	return ids, nil
}

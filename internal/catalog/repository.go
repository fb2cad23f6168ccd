package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgx used by the repository. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads products from Postgres.
type Repository struct {
	Q Querier
}

const productColumns = `id, name, price_gbp::text, description`

// FindByIDs resolves the given ids in one round trip. Unknown ids are omitted from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if r == nil || r.Q == nil {
		return nil, errors.New("catalog repository not configured")
	}
	rows, err := r.Q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products by id: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// Get returns a single product or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	if r == nil || r.Q == nil {
		return Product{}, errors.New("catalog repository not configured")
	}
	var (
		p     Product
		price string
	)
	err := r.Q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &price, &p.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("parse price for product %d: %w", p.ID, err)
	}
	return p, nil
}

// List returns all products ordered by name. A non-empty query filters on name or description.
func (r *Repository) List(ctx context.Context, query string) ([]Product, error) {
	if r == nil || r.Q == nil {
		return nil, errors.New("catalog repository not configured")
	}
	query = strings.TrimSpace(query)
	var (
		rows pgx.Rows
		err  error
	)
	if query == "" {
		rows, err = r.Q.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	} else {
		pattern := "%" + escapeLike(query) + "%"
		rows, err = r.Q.Query(ctx, `SELECT `+productColumns+` FROM products
			WHERE name ILIKE $1 OR description ILIKE $1
			ORDER BY name`, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collectProducts(rows)
}

// Upsert inserts or updates a product keyed by its unique name.
func (r *Repository) Upsert(ctx context.Context, name string, price decimal.Decimal, description string) (int64, error) {
	if r == nil || r.Q == nil {
		return 0, errors.New("catalog repository not configured")
	}
	var id int64
	err := r.Q.QueryRow(ctx, `INSERT INTO products (name, price_gbp, description)
		VALUES ($1, $2::numeric, $3)
		ON CONFLICT (name) DO UPDATE SET price_gbp = EXCLUDED.price_gbp, description = EXCLUDED.description
		RETURNING id`, name, price.StringFixed(2), description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert product %q: %w", name, err)
	}
	return id, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var (
			p     Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Description); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price for product %d: %w", p.ID, err)
		}
		p.Price = d
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

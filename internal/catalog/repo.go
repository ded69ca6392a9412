package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ecombase/checkout/internal/postgres"
)

var ErrInsufficientStock = errors.New("insufficient stock or product not found")

type ProductPricing struct {
	ID       int64
	Title    string
	Price    decimal.Decimal
	Discount decimal.Decimal
}

// EffectivePrice is the unit price a line item is charged at.
func (p ProductPricing) EffectivePrice() decimal.Decimal {
	if p.Discount.IsPositive() {
		return p.Price.Sub(p.Discount)
	}
	return p.Price
}

// Repo is the product collaborator plus the stock ledger. Stock is the one
// piece of state touched by concurrent checkouts; it is only ever mutated via
// the conditional updates below, never read-then-written.
type Repo struct{}

func (r *Repo) ExistAll(ctx context.Context, db postgres.DBTX, ids []int64) (bool, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT COUNT(DISTINCT id) FROM products WHERE id = ANY($1)`, ids).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == len(dedupe(ids)), nil
}

func (r *Repo) PricingSnapshot(ctx context.Context, db postgres.DBTX, ids []int64) (map[int64]ProductPricing, error) {
	rows, err := db.Query(ctx, `SELECT id, title, price, discount FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]ProductPricing, len(ids))
	for rows.Next() {
		var p ProductPricing
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Discount); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// DecreaseStock succeeds only when enough stock remains. The row-level lock
// taken by UPDATE serializes concurrent checkouts for the same product; zero
// rows affected means insufficient stock (or no such product) and the caller
// must roll the whole order back.
func (r *Repo) DecreaseStock(ctx context.Context, db postgres.DBTX, productID int64, qty int) error {
	ct, err := db.Exec(ctx,
		`UPDATE products SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// IncreaseStock is the compensating action for DecreaseStock.
func (r *Repo) IncreaseStock(ctx context.Context, db postgres.DBTX, productID int64, qty int) error {
	_, err := db.Exec(ctx,
		`UPDATE products SET quantity = quantity + $2 WHERE id = $1`,
		productID, qty)
	return err
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

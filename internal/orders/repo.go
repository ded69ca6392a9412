package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ecombase/checkout/internal/postgres"
)

type Repo struct{}

func (r *Repo) Create(ctx context.Context, db postgres.DBTX, o *Order) error {
	err := db.QueryRow(ctx, `
		INSERT INTO orders(number, status, subtotal, shipping, discount, total, currency,
		                   is_paid, user_id, shipping_address_id, shipping_method_id, coupon_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at, updated_at`,
		o.Number, o.Status, o.Subtotal, o.Shipping, o.Discount, o.Total, o.Currency,
		o.IsPaid, o.UserID, o.ShippingAddressID, o.ShippingMethodID, o.CouponID,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := db.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, unit_price, quantity)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id`,
			it.OrderID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity,
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) NumberExists(ctx context.Context, db postgres.DBTX, number string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE number=$1)`, number).Scan(&exists)
	return exists, err
}

const orderColumns = `id, number, status, subtotal, shipping, discount, total, currency,
		is_paid, user_id, shipping_address_id, shipping_method_id, coupon_id, created_at, updated_at`

func (r *Repo) GetByID(ctx context.Context, db postgres.DBTX, id int64) (*Order, error) {
	return r.get(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repo) GetByNumber(ctx context.Context, db postgres.DBTX, number string) (*Order, error) {
	return r.get(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE number=$1`, number)
}

func (r *Repo) get(ctx context.Context, db postgres.DBTX, query string, arg any) (*Order, error) {
	var o Order
	err := db.QueryRow(ctx, query, arg).Scan(
		&o.ID, &o.Number, &o.Status, &o.Subtotal, &o.Shipping, &o.Discount, &o.Total,
		&o.Currency, &o.IsPaid, &o.UserID, &o.ShippingAddressID, &o.ShippingMethodID,
		&o.CouponID, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) Items(ctx context.Context, db postgres.DBTX, orderID int64) ([]OrderItem, error) {
	rows, err := db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity
		FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repo) UpdateStatus(ctx context.Context, db postgres.DBTX, id int64, status Status, isPaid bool) error {
	_, err := db.Exec(ctx,
		`UPDATE orders SET status=$2, is_paid=$3, updated_at=now() WHERE id=$1`,
		id, status, isPaid)
	return err
}

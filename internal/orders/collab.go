package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ecombase/checkout/internal/postgres"
)

// Collaborator repos the aggregate consumes. Identity, addresses, shipping
// methods and coupons live in their own tables but are owned elsewhere; this
// package only needs the narrow operations below.

type UserRepo struct{}

func (r *UserRepo) Exists(ctx context.Context, db postgres.DBTX, userID string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists)
	return exists, err
}

type AddressRepo struct{}

func (r *AddressRepo) Create(ctx context.Context, db postgres.DBTX, d AddressDetails) (int64, error) {
	if d.FullName == "" || d.Phone == "" || d.City == "" || d.Street == "" || d.PostalCode == "" {
		return 0, ErrInvalidAddress
	}
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO shipping_addresses(full_name, phone, city, street, postal_code)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		d.FullName, d.Phone, d.City, d.Street, d.PostalCode,
	).Scan(&id)
	return id, err
}

type ShippingMethodRepo struct{}

func (r *ShippingMethodRepo) FindByName(ctx context.Context, db postgres.DBTX, name string) (*ShippingMethod, error) {
	var m ShippingMethod
	err := db.QueryRow(ctx, `SELECT id, name, price FROM shipping_methods WHERE name=$1`, name).
		Scan(&m.ID, &m.Name, &m.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type CouponRepo struct{}

func (r *CouponRepo) FindByCode(ctx context.Context, db postgres.DBTX, code string) (*Coupon, error) {
	var c Coupon
	err := db.QueryRow(ctx, `SELECT id, code, discount_percentage, end_at FROM coupons WHERE code=$1`, code).
		Scan(&c.ID, &c.Code, &c.DiscountPercentage, &c.EndAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

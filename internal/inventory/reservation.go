package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ecombase/checkout/internal/postgres"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReleased Status = "RELEASED"
	StatusConsumed Status = "CONSUMED"
)

// Reservation is a temporary hold of stock for one order. ExpiresAt is nil for
// pay-on-delivery orders, which hold stock until consumed or manually released.
type Reservation struct {
	ID        uuid.UUID
	OrderID   int64
	Status    Status
	ExpiresAt *time.Time
	CreatedAt time.Time
}

type Repo struct{}

func (r *Repo) Create(ctx context.Context, db postgres.DBTX, res *Reservation) error {
	return db.QueryRow(ctx, `
		INSERT INTO inventory_reservations(id, order_id, status, expires_at)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		res.ID, res.OrderID, res.Status, res.ExpiresAt,
	).Scan(&res.CreatedAt)
}

func (r *Repo) GetByOrder(ctx context.Context, db postgres.DBTX, orderID int64) (*Reservation, error) {
	var res Reservation
	err := db.QueryRow(ctx, `
		SELECT id, order_id, status, expires_at, created_at
		FROM inventory_reservations WHERE order_id=$1`, orderID).
		Scan(&res.ID, &res.OrderID, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// TransitionFromActive applies Active -> to. Returns false when the reservation
// is missing or already terminal; the conditional update is what makes the
// expiry job and the payment callback safe to race.
func (r *Repo) TransitionFromActive(ctx context.Context, db postgres.DBTX, orderID int64, to Status) (bool, error) {
	ct, err := db.Exec(ctx, `
		UPDATE inventory_reservations SET status=$2
		WHERE order_id=$1 AND status=$3`,
		orderID, to, StatusActive)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

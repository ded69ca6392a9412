package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ecombase/checkout/internal/postgres"
)

type Repo struct{}

func (r *Repo) Create(ctx context.Context, db postgres.DBTX, p *Payment) error {
	return db.QueryRow(ctx, `
		INSERT INTO payments(id, provider, provider_txn_id, amount, currency, status,
		                     fulfilled, user_id, order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.Provider, p.ProviderTxnID, p.Amount, p.Currency, p.Status,
		p.Fulfilled, p.UserID, p.OrderID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) GetByID(ctx context.Context, db postgres.DBTX, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := db.QueryRow(ctx, `
		SELECT id, provider, provider_txn_id, amount, currency, status, fulfilled,
		       user_id, order_id, created_at, updated_at
		FROM payments WHERE id=$1`, id).
		Scan(&p.ID, &p.Provider, &p.ProviderTxnID, &p.Amount, &p.Currency, &p.Status,
			&p.Fulfilled, &p.UserID, &p.OrderID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStatus only moves payments out of PROCESSING; a second callback for the
// same payment affects zero rows.
func (r *Repo) UpdateStatus(ctx context.Context, db postgres.DBTX, id uuid.UUID, status Status, fulfilled bool, providerTxnID *string) (bool, error) {
	ct, err := db.Exec(ctx, `
		UPDATE payments
		SET status=$2, fulfilled=$3,
		    provider_txn_id=COALESCE($4, provider_txn_id),
		    updated_at=now()
		WHERE id=$1 AND status=$5`,
		id, status, fulfilled, providerTxnID, StatusProcessing)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

type ObservedPaymentRepository struct {
	db *sql.DB
}

func NewObservedPaymentRepository(db *sql.DB) *ObservedPaymentRepository {
	return &ObservedPaymentRepository{db: db}
}

func (r *ObservedPaymentRepository) Seen(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM observed_payments WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("Seen: %w", err)
	}
	return exists, nil
}

// Record stores the payment. Recording an id twice is not an error.
func (r *ObservedPaymentRepository) Record(ctx context.Context, p domain.ObservedPayment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO observed_payments (
			id, type, from_account, to_account, amount, asset, transaction_hash,
			memo, memo_type, paging_token, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Type, p.From, p.To, p.Amount, p.Asset, p.TransactionHash,
		p.Memo, p.MemoType, p.PagingToken, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Record: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const custodyTransactionColumns = `id, transfer_id, to_account, memo, external_tx_id, created_at, updated_at`

type CustodyTransactionRepository struct {
	db *sql.DB
}

func NewCustodyTransactionRepository(db *sql.DB) *CustodyTransactionRepository {
	return &CustodyTransactionRepository{db: db}
}

// Upsert creates the correlation for a transfer or refreshes its address and memo.
func (r *CustodyTransactionRepository) Upsert(ctx context.Context, ct *domain.CustodyTransaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO custody_transactions (id, transfer_id, to_account, memo, external_tx_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transfer_id) DO UPDATE SET to_account = EXCLUDED.to_account,
			memo = EXCLUDED.memo, updated_at = EXCLUDED.updated_at`,
		ct.ID, ct.TransferID, ct.ToAccount, ct.Memo, ct.ExternalTxID, ct.CreatedAt, ct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (r *CustodyTransactionRepository) GetByExternalTxID(ctx context.Context, externalTxID string) (*domain.CustodyTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+custodyTransactionColumns+` FROM custody_transactions
		WHERE external_tx_id = $1 ORDER BY created_at DESC LIMIT 1`, externalTxID,
	)
	ct, err := scanCustodyTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByExternalTxID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByExternalTxID: %w", err)
	}
	return ct, nil
}

func (r *CustodyTransactionRepository) GetByTransferID(ctx context.Context, transferID string) (*domain.CustodyTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+custodyTransactionColumns+` FROM custody_transactions WHERE transfer_id = $1`, transferID,
	)
	ct, err := scanCustodyTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTransferID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTransferID: %w", err)
	}
	return ct, nil
}

// SetExternalTxID stamps the newest correlation for (toAccount, memo) with the
// provider's transaction id. An id that is already set is left untouched.
func (r *CustodyTransactionRepository) SetExternalTxID(ctx context.Context, toAccount, memo, externalTxID string) (*domain.CustodyTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE custody_transactions SET
			external_tx_id = CASE WHEN external_tx_id = '' THEN $3 ELSE external_tx_id END,
			updated_at = now()
		WHERE id = (
			SELECT id FROM custody_transactions WHERE to_account = $1 AND memo = $2
			ORDER BY created_at DESC LIMIT 1
		)
		RETURNING `+custodyTransactionColumns,
		toAccount, memo, externalTxID,
	)
	ct, err := scanCustodyTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("SetExternalTxID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("SetExternalTxID: %w", err)
	}
	return ct, nil
}

func scanCustodyTransaction(s scanner) (*domain.CustodyTransaction, error) {
	var ct domain.CustodyTransaction
	err := s.Scan(&ct.ID, &ct.TransferID, &ct.ToAccount, &ct.Memo, &ct.ExternalTxID, &ct.CreatedAt, &ct.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const reconciliationColumns = `transfer_id, condition, account, asset, attempts, created_at, updated_at`

type ReconciliationRepository struct {
	db *sql.DB
}

func NewReconciliationRepository(db *sql.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// Create keeps the original record, and its creation time, if one already exists.
func (r *ReconciliationRepository) Create(ctx context.Context, p *domain.PendingReconciliation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_reconciliations (transfer_id, condition, account, asset, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transfer_id, condition) DO NOTHING`,
		p.TransferID, p.Condition, p.Account, p.Asset, p.Attempts, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ReconciliationRepository) ListByCondition(ctx context.Context, condition domain.ReconcileCondition, limit int) ([]domain.PendingReconciliation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reconciliationColumns+` FROM pending_reconciliations
		WHERE condition = $1 ORDER BY created_at LIMIT $2`,
		condition, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByCondition: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingReconciliation
	for rows.Next() {
		var p domain.PendingReconciliation
		if err := rows.Scan(&p.TransferID, &p.Condition, &p.Account, &p.Asset, &p.Attempts, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListByCondition: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByCondition: rows: %w", err)
	}
	return out, nil
}

func (r *ReconciliationRepository) IncrementAttempts(ctx context.Context, transferID string, condition domain.ReconcileCondition) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pending_reconciliations SET attempts = attempts + 1, updated_at = now()
		WHERE transfer_id = $1 AND condition = $2`,
		transferID, condition,
	)
	if err != nil {
		return fmt.Errorf("IncrementAttempts: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("IncrementAttempts: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("IncrementAttempts: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *ReconciliationRepository) Delete(ctx context.Context, transferID string, condition domain.ReconcileCondition) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_reconciliations WHERE transfer_id = $1 AND condition = $2`,
		transferID, condition,
	)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

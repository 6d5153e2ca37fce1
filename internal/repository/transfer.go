package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const transferColumns = `id, variant, status,
	amount_in, amount_in_asset, amount_out, amount_out_asset,
	amount_fee, amount_fee_asset, amount_expected, amount_expected_asset,
	external_transaction_id, ledger_transaction_id, custody_transaction_id,
	refunds, source_account, destination_account, deposit_info, ledger_payments,
	message, started_at, updated_at, completed_at, transfer_received_at, version`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, t *domain.Transfer) error {
	args, err := transferArgs(t)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)`,
		append(args, t.Version)...,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransferRepository) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: transfer %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return t, nil
}

// CompareAndSave writes t only if the stored version still equals expectedVersion.
// A lost race returns domain.ErrVersionConflict and the caller re-reads.
func (r *TransferRepository) CompareAndSave(ctx context.Context, t *domain.Transfer, expectedVersion int64) error {
	args, err := transferArgs(t)
	if err != nil {
		return fmt.Errorf("CompareAndSave: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET
			variant = $2, status = $3,
			amount_in = $4, amount_in_asset = $5, amount_out = $6, amount_out_asset = $7,
			amount_fee = $8, amount_fee_asset = $9, amount_expected = $10, amount_expected_asset = $11,
			external_transaction_id = $12, ledger_transaction_id = $13, custody_transaction_id = $14,
			refunds = $15, source_account = $16, destination_account = $17, deposit_info = $18,
			ledger_payments = $19, message = $20, started_at = $21, updated_at = $22,
			completed_at = $23, transfer_received_at = $24, version = version + 1
		WHERE id = $1 AND version = $25`,
		append(args, expectedVersion)...,
	)
	if err != nil {
		return fmt.Errorf("CompareAndSave: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("CompareAndSave: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("CompareAndSave: transfer %s: %w", t.ID, domain.ErrVersionConflict)
	}
	t.Version = expectedVersion + 1
	return nil
}

// FindByLedgerPayment returns the transfer a ledger operation was applied to.
func (r *TransferRepository) FindByLedgerPayment(ctx context.Context, operationID string) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE ledger_payments @> jsonb_build_array(jsonb_build_object('operation_id', $1::text))
		LIMIT 1`, operationID,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FindByLedgerPayment: operation %s: %w", operationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindByLedgerPayment: %w", err)
	}
	return t, nil
}

// ListActive returns every transfer not yet in a terminal status.
func (r *TransferRepository) ListActive(ctx context.Context) ([]domain.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE status NOT IN ('completed', 'refunded', 'expired', 'error')
		ORDER BY started_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: scan: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActive: rows: %w", err)
	}
	return transfers, nil
}

func transferArgs(t *domain.Transfer) ([]any, error) {
	refunds, err := nullableJSON(t.Refunds)
	if err != nil {
		return nil, fmt.Errorf("marshal refunds: %w", err)
	}
	depositInfo, err := nullableJSON(t.DepositInfo)
	if err != nil {
		return nil, fmt.Errorf("marshal deposit info: %w", err)
	}
	payments := t.LedgerPayments
	if payments == nil {
		payments = []domain.LedgerPayment{}
	}
	ledgerPayments, err := json.Marshal(payments)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger payments: %w", err)
	}

	inValue, inAsset := amountArgs(t.AmountIn)
	outValue, outAsset := amountArgs(t.AmountOut)
	feeValue, feeAsset := amountArgs(t.AmountFee)
	expValue, expAsset := amountArgs(t.AmountExpected)

	return []any{
		t.ID, t.Variant, t.Status,
		inValue, inAsset, outValue, outAsset,
		feeValue, feeAsset, expValue, expAsset,
		t.ExternalTransactionID, t.LedgerTransactionID, t.CustodyTransactionID,
		refunds, t.SourceAccount, t.DestinationAccount, depositInfo, string(ledgerPayments),
		t.Message, t.StartedAt, t.UpdatedAt, t.CompletedAt, t.TransferReceivedAt,
	}, nil
}

func amountArgs(a *domain.Amount) (decimal.NullDecimal, sql.NullString) {
	if a == nil {
		return decimal.NullDecimal{}, sql.NullString{}
	}
	return decimal.NullDecimal{Decimal: a.Value, Valid: true}, sql.NullString{String: a.Asset, Valid: true}
}

func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanAmount(value decimal.NullDecimal, asset sql.NullString) *domain.Amount {
	if !value.Valid || !asset.Valid {
		return nil
	}
	return &domain.Amount{Value: value.Decimal, Asset: asset.String}
}

func scanTransfer(s scanner) (*domain.Transfer, error) {
	var t domain.Transfer
	var inValue, outValue, feeValue, expValue decimal.NullDecimal
	var inAsset, outAsset, feeAsset, expAsset sql.NullString
	var refunds, depositInfo, ledgerPayments []byte

	err := s.Scan(
		&t.ID, &t.Variant, &t.Status,
		&inValue, &inAsset, &outValue, &outAsset,
		&feeValue, &feeAsset, &expValue, &expAsset,
		&t.ExternalTransactionID, &t.LedgerTransactionID, &t.CustodyTransactionID,
		&refunds, &t.SourceAccount, &t.DestinationAccount, &depositInfo, &ledgerPayments,
		&t.Message, &t.StartedAt, &t.UpdatedAt, &t.CompletedAt, &t.TransferReceivedAt, &t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.AmountIn = scanAmount(inValue, inAsset)
	t.AmountOut = scanAmount(outValue, outAsset)
	t.AmountFee = scanAmount(feeValue, feeAsset)
	t.AmountExpected = scanAmount(expValue, expAsset)

	if refunds != nil {
		t.Refunds = &domain.Refunds{}
		if err := json.Unmarshal(refunds, t.Refunds); err != nil {
			return nil, fmt.Errorf("unmarshal refunds: %w", err)
		}
	}
	if depositInfo != nil {
		t.DepositInfo = &domain.DepositInfo{}
		if err := json.Unmarshal(depositInfo, t.DepositInfo); err != nil {
			return nil, fmt.Errorf("unmarshal deposit info: %w", err)
		}
	}
	if len(ledgerPayments) > 0 {
		if err := json.Unmarshal(ledgerPayments, &t.LedgerPayments); err != nil {
			return nil, fmt.Errorf("unmarshal ledger payments: %w", err)
		}
	}
	return &t, nil
}

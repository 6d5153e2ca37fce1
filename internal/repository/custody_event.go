package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const custodyEventColumns = `id, custody_transaction_id, custody_status, destination_address,
	destination_tag, tx_hash, amount, payload, status, attempts, last_attempt, occurred_at, created_at`

type CustodyEventRepository struct {
	db *sql.DB
}

func NewCustodyEventRepository(db *sql.DB) *CustodyEventRepository {
	return &CustodyEventRepository{db: db}
}

// Create returns domain.ErrDuplicateEvent when the (custody transaction, status) pair was already stored.
func (r *CustodyEventRepository) Create(ctx context.Context, event *domain.CustodyEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO custody_events (
			id, custody_transaction_id, custody_status, destination_address, destination_tag,
			tx_hash, amount, payload, status, attempts, last_attempt, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.ID, event.CustodyTransactionID, event.CustodyStatus, event.DestinationAddress,
		event.DestinationTag, event.TxHash, event.Amount, string(event.Payload), event.Status,
		event.Attempts, event.LastAttempt, event.OccurredAt, event.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateEvent)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ClaimPending returns pending events inside tx, locked so concurrent processors skip them.
func (r *CustodyEventRepository) ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.CustodyEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+custodyEventColumns+` FROM custody_events
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`,
		domain.CustodyEventStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var events []domain.CustodyEvent
	for rows.Next() {
		e, err := scanCustodyEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return events, nil
}

func (r *CustodyEventRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.CustodyEventStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE custody_events SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanCustodyEvent(s scanner) (*domain.CustodyEvent, error) {
	var e domain.CustodyEvent
	var payload []byte
	err := s.Scan(
		&e.ID, &e.CustodyTransactionID, &e.CustodyStatus, &e.DestinationAddress,
		&e.DestinationTag, &e.TxHash, &e.Amount, &payload, &e.Status,
		&e.Attempts, &e.LastAttempt, &e.OccurredAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type CursorRepository struct {
	db *sql.DB
}

func NewCursorRepository(db *sql.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Load returns "" when no cursor has been stored for the account.
func (r *CursorRepository) Load(ctx context.Context, account string) (string, error) {
	var cursor string
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor FROM ledger_cursors WHERE account = $1`, account,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("Load: %w", err)
	}
	return cursor, nil
}

func (r *CursorRepository) Save(ctx context.Context, account, cursor string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_cursors (account, cursor, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (account) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = now()`,
		account, cursor,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

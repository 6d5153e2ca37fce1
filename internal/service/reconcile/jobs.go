package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/service/transfer"
)

const defaultBatchSize = 100

type pendingStore interface {
	ListByCondition(ctx context.Context, condition domain.ReconcileCondition, limit int) ([]domain.PendingReconciliation, error)
	IncrementAttempts(ctx context.Context, transferID string, condition domain.ReconcileCondition) error
	Delete(ctx context.Context, transferID string, condition domain.ReconcileCondition) error
}

// verdict is what a check concluded about one pending record.
type verdict int

const (
	waiting verdict = iota
	// settled means the transfer no longer needs this record.
	settled
)

// scan walks every record for condition and hands it to check. A settled
// record is deleted; a waiting one has its attempt counter bumped. Errors
// leave the record untouched for the next run.
func scan(ctx context.Context, store pendingStore, condition domain.ReconcileCondition,
	check func(ctx context.Context, rec domain.PendingReconciliation) (verdict, error),
) error {
	records, err := store.ListByCondition(ctx, condition, defaultBatchSize)
	if err != nil {
		return fmt.Errorf("scan %s: %w", condition, err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log := logging.FromContext(ctx).With("transfer_id", rec.TransferID, "condition", condition)
		rctx := logging.WithLogger(ctx, log)

		v, err := check(rctx, rec)
		if err != nil {
			log.Error("reconciliation check failed", "attempts", rec.Attempts, "error", err)
			continue
		}

		switch v {
		case settled:
			if err := store.Delete(ctx, rec.TransferID, condition); err != nil {
				log.Error("failed to delete reconciliation record", "error", err)
			}
		case waiting:
			if err := store.IncrementAttempts(ctx, rec.TransferID, condition); err != nil {
				log.Error("failed to increment reconciliation attempts", "error", err)
			}
		}
	}
	return nil
}

// inject applies a transition. A transfer that already left the watched
// status counts as handled.
func inject(ctx context.Context, transfers *transfer.Service, id string, action domain.Action, mutate transfer.Mutation) (verdict, error) {
	_, err := transfers.Apply(ctx, id, action, mutate)
	switch {
	case err == nil:
		return settled, nil
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
		logging.FromContext(ctx).Info("transfer already handled", "action", action, "reason", err)
		return settled, nil
	}
	return waiting, fmt.Errorf("inject %s: %w", action, err)
}

func withMessage(msg string) transfer.Mutation {
	return func(t *domain.Transfer, target domain.Status) (domain.Status, error) {
		if msg != "" {
			t.Message = msg
		}
		return target, nil
	}
}

// trustNotSet reports a failed trust set, the same way an RPC caller does
// with success=false.
func trustNotSet(msg string) transfer.Mutation {
	if msg == "" {
		msg = domain.MessageTrustNotSet
	}
	return withMessage(msg)
}

type TrustlineChecker interface {
	HasTrustline(ctx context.Context, account, asset string) (bool, error)
}

type TrustlineConfig struct {
	Interval       time.Duration
	Timeout        time.Duration
	TimeoutMessage string
}

// TrustlineJob waits for a deposit's receiving account to trust the asset.
type TrustlineJob struct {
	records   pendingStore
	ledger    TrustlineChecker
	transfers *transfer.Service
	cfg       TrustlineConfig
	now       func() time.Time
}

func NewTrustlineJob(records pendingStore, ledger TrustlineChecker, transfers *transfer.Service, cfg TrustlineConfig) *TrustlineJob {
	return &TrustlineJob{
		records:   records,
		ledger:    ledger,
		transfers: transfers,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (j *TrustlineJob) Name() string { return "trustline_check" }
func (j *TrustlineJob) Interval() time.Duration { return j.cfg.Interval }

func (j *TrustlineJob) Run(ctx context.Context) error {
	return scan(ctx, j.records, domain.ReconcileTrustline, j.check)
}

func (j *TrustlineJob) check(ctx context.Context, rec domain.PendingReconciliation) (verdict, error) {
	if rec.Expired(j.now(), j.cfg.Timeout) {
		logging.FromContext(ctx).Warn("trustline was not established in time", "created_at", rec.CreatedAt)
		return inject(ctx, j.transfers, rec.TransferID, domain.ActionNotifyTrustSet, trustNotSet(j.cfg.TimeoutMessage))
	}

	ok, err := j.ledger.HasTrustline(ctx, rec.Account, rec.Asset)
	if err != nil {
		return waiting, fmt.Errorf("check: %w", err)
	}
	if !ok {
		return waiting, nil
	}
	return inject(ctx, j.transfers, rec.TransferID, domain.ActionNotifyTrustSet, nil)
}

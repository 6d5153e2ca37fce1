// Package transfer is the single write path for transfer records. RPC calls,
// ledger observations, custody callbacks and reconciliation jobs all mutate
// transfers through Service.Apply.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/index"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/notify"
	"github.com/josh-kwaku/anchor-gateway/internal/statemachine"
)

// ErrUnchanged may be returned by a Mutation to report that the transfer
// already reflects the event. Apply then reports NoOp without saving.
var ErrUnchanged = errors.New("transfer unchanged")

// Mutation edits a copy of the transfer and returns the status to move to.
// target is the default destination from the transition table.
type Mutation func(t *domain.Transfer, target domain.Status) (domain.Status, error)

type Store interface {
	Get(ctx context.Context, id string) (*domain.Transfer, error)
	CompareAndSave(ctx context.Context, t *domain.Transfer, expectedVersion int64) error
	FindByLedgerPayment(ctx context.Context, operationID string) (*domain.Transfer, error)
}

type reconciliationRepository interface {
	Create(ctx context.Context, p *domain.PendingReconciliation) error
}

type custodyTransactionRepository interface {
	Upsert(ctx context.Context, ct *domain.CustodyTransaction) error
}

type Result struct {
	Outcome  statemachine.Outcome
	Transfer *domain.Transfer
}

type Deps struct {
	Store    Store
	Machine  *statemachine.Machine
	Index    index.Index
	Notifier notify.Notifier

	// optional
	Reconciliations reconciliationRepository
	Custody         custodyTransactionRepository
	MaxRetries      int
	Now             func() time.Time
}

type Service struct {
	store      Store
	machine    *statemachine.Machine
	index      index.Index
	notifier   notify.Notifier
	recon      reconciliationRepository
	custody    custodyTransactionRepository
	maxRetries int
	now        func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		machine:    d.Machine,
		index:      d.Index,
		notifier:   d.Notifier,
		recon:      d.Reconciliations,
		custody:    d.Custody,
		maxRetries: d.MaxRetries,
		now:        d.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 5
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return t, nil
}

// FindByLedgerPayment returns the transfer a ledger operation already settled.
func (s *Service) FindByLedgerPayment(ctx context.Context, operationID string) (*domain.Transfer, error) {
	t, err := s.store.FindByLedgerPayment(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("FindByLedgerPayment: %w", err)
	}
	return t, nil
}

func (s *Service) Machine() *statemachine.Machine {
	return s.machine
}

// Apply runs read, decide, mutate, compare-and-save. A lost race re-reads and
// decides again against the fresh state, so a concurrent writer that already
// moved the transfer turns this call into a NoOp or a rejection.
func (s *Service) Apply(ctx context.Context, id string, action domain.Action, mutate Mutation) (*Result, error) {
	log := logging.FromContext(ctx).With("transfer_id", id, "action", action)

	for attempt := 0; ; attempt++ {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("Apply: %w", err)
		}

		d := s.machine.Decide(cur.Variant, cur.Status, action)
		switch d.Outcome {
		case statemachine.Rejected:
			return &Result{Outcome: statemachine.Rejected, Transfer: cur}, fmt.Errorf("Apply: %w", d.Reason)
		case statemachine.NoOp:
			log.Info("action already reflected, nothing applied", "status", cur.Status)
			return &Result{Outcome: statemachine.NoOp, Transfer: cur}, nil
		}

		next := cur.Clone()
		target := d.Next
		if mutate != nil {
			target, err = mutate(next, d.Next)
			if errors.Is(err, ErrUnchanged) {
				log.Info("event already applied to transfer", "status", cur.Status)
				return &Result{Outcome: statemachine.NoOp, Transfer: cur}, nil
			}
			if err != nil {
				return &Result{Outcome: statemachine.Rejected, Transfer: cur}, fmt.Errorf("Apply: %w", err)
			}
			if target != d.Next && !s.machine.Allows(cur.Variant, action, target) {
				return &Result{Outcome: statemachine.Rejected, Transfer: cur},
					fmt.Errorf("Apply: target %s for %s: %w", target, action, domain.ErrInvalidTransition)
			}
		}

		now := s.now()
		next.Status = target
		preserveInvariants(cur, next, now)

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("Apply: %w", err)
		}

		err = s.store.CompareAndSave(ctx, next, cur.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			if attempt+1 >= s.maxRetries {
				return nil, fmt.Errorf("Apply: gave up after %d attempts: %w", attempt+1, err)
			}
			log.Debug("concurrent write detected, re-evaluating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("Apply: %w", err)
		}

		log.Info("transition applied", "from", cur.Status, "to", next.Status)
		s.afterCommit(ctx, action, cur, next)
		return &Result{Outcome: statemachine.Applied, Transfer: next}, nil
	}
}

// preserveInvariants reverts edits a mutation is never allowed to make.
func preserveInvariants(cur, next *domain.Transfer, now time.Time) {
	next.ID = cur.ID
	next.Variant = cur.Variant
	next.StartedAt = cur.StartedAt
	next.Version = cur.Version

	if cur.DepositInfo != nil {
		next.DepositInfo = cur.DepositInfo.Clone()
	}
	if cur.CompletedAt != nil {
		v := *cur.CompletedAt
		next.CompletedAt = &v
	} else if next.Status == domain.StatusCompleted && next.CompletedAt == nil {
		next.CompletedAt = &now
	}
	if cur.TransferReceivedAt != nil && (next.TransferReceivedAt == nil || next.TransferReceivedAt.Before(*cur.TransferReceivedAt)) {
		v := *cur.TransferReceivedAt
		next.TransferReceivedAt = &v
	}

	next.UpdatedAt = now
	if now.Before(cur.UpdatedAt) {
		next.UpdatedAt = cur.UpdatedAt
	}
}

func (s *Service) afterCommit(ctx context.Context, action domain.Action, prev, next *domain.Transfer) {
	log := logging.FromContext(ctx).With("transfer_id", next.ID)

	if s.index != nil {
		if err := index.Sync(ctx, s.index, prev, next); err != nil {
			log.Error("failed to sync active transfer index", "error", err)
		}
	}

	s.track(ctx, prev, next)

	if err := s.notifier.Notify(ctx, notify.NewEvent(action, next, next.UpdatedAt)); err != nil {
		log.Error("failed to deliver transfer notification", "status", next.Status, "error", err)
	}
}

// track registers follow-up work for statuses that wait on an external condition.
func (s *Service) track(ctx context.Context, prev, next *domain.Transfer) {
	if prev.Status == next.Status {
		return
	}
	log := logging.FromContext(ctx).With("transfer_id", next.ID)
	now := s.now()

	if s.custody != nil {
		if account, memo, ok := next.CustodyCorrelation(); ok {
			err := s.custody.Upsert(ctx, &domain.CustodyTransaction{
				ID:         uuid.New(),
				TransferID: next.ID,
				ToAccount:  account,
				Memo:       memo,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if err != nil {
				log.Error("failed to record custody correlation", "error", err)
			}
		}
	}

	if s.recon == nil {
		return
	}

	var condition domain.ReconcileCondition
	switch {
	case next.Status == domain.StatusPendingTrust:
		condition = domain.ReconcileTrustline
	case next.Status == domain.StatusPendingStellar && s.custody != nil:
		condition = domain.ReconcileCustodyPayment
	default:
		return
	}

	asset := ""
	if next.AmountOut != nil {
		asset = next.AmountOut.Asset
	} else if next.AmountIn != nil {
		asset = next.AmountIn.Asset
	}
	err := s.recon.Create(ctx, &domain.PendingReconciliation{
		TransferID: next.ID,
		Condition:  condition,
		Account:    next.DestinationAccount,
		Asset:      asset,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		log.Error("failed to register reconciliation", "condition", condition, "error", err)
	}
}

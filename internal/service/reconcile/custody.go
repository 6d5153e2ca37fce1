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

type CustodyStatusClient interface {
	TransactionStatus(ctx context.Context, externalTxID string) (*domain.CustodyEvent, error)
}

type correlationLookup interface {
	GetByTransferID(ctx context.Context, transferID string) (*domain.CustodyTransaction, error)
}

// eventSink re-injects provider state through the webhook pipeline so it is
// deduplicated and applied exactly like a delivered callback.
type eventSink interface {
	Store(ctx context.Context, e *domain.CustodyEvent) error
}

type CustodyTimeoutConfig struct {
	Interval       time.Duration
	Timeout        time.Duration
	TimeoutMessage string
}

// CustodyTimeoutJob chases custody payments whose callback never arrived and
// fails the transfer once the payment is overdue.
type CustodyTimeoutJob struct {
	records     pendingStore
	correlation correlationLookup
	client      CustodyStatusClient
	events      eventSink
	transfers   *transfer.Service
	cfg         CustodyTimeoutConfig
	now         func() time.Time
}

// NewCustodyTimeoutJob builds the job. client may be nil, in which case only
// the timeout applies.
func NewCustodyTimeoutJob(
	records pendingStore,
	correlation correlationLookup,
	client CustodyStatusClient,
	events eventSink,
	transfers *transfer.Service,
	cfg CustodyTimeoutConfig,
) *CustodyTimeoutJob {
	return &CustodyTimeoutJob{
		records:     records,
		correlation: correlation,
		client:      client,
		events:      events,
		transfers:   transfers,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (j *CustodyTimeoutJob) Name() string { return "custody_timeout" }
func (j *CustodyTimeoutJob) Interval() time.Duration { return j.cfg.Interval }

func (j *CustodyTimeoutJob) Run(ctx context.Context) error {
	return scan(ctx, j.records, domain.ReconcileCustodyPayment, j.check)
}

func (j *CustodyTimeoutJob) check(ctx context.Context, rec domain.PendingReconciliation) (verdict, error) {
	log := logging.FromContext(ctx)

	t, err := j.transfers.Get(ctx, rec.TransferID)
	if errors.Is(err, domain.ErrNotFound) {
		return settled, nil
	}
	if err != nil {
		return waiting, fmt.Errorf("check: %w", err)
	}
	if t.Status != domain.StatusPendingStellar {
		return settled, nil
	}

	if reinjected, err := j.reinject(ctx, rec.TransferID); err != nil {
		log.Warn("custody status check failed", "error", err)
	} else if reinjected {
		return waiting, nil
	}

	if rec.Expired(j.now(), j.cfg.Timeout) {
		log.Warn("custody payment timed out", "created_at", rec.CreatedAt)
		return inject(ctx, j.transfers, rec.TransferID, domain.ActionNotifyTransactionError, withMessage(j.cfg.TimeoutMessage))
	}
	return waiting, nil
}

// reinject asks the provider for the transaction's state and queues it when
// it carries an outcome.
func (j *CustodyTimeoutJob) reinject(ctx context.Context, transferID string) (bool, error) {
	if j.client == nil || j.correlation == nil {
		return false, nil
	}
	ct, err := j.correlation.GetByTransferID(ctx, transferID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reinject: %w", err)
	}
	if ct.ExternalTxID == "" {
		return false, nil
	}

	e, err := j.client.TransactionStatus(ctx, ct.ExternalTxID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reinject: %w", err)
	}
	if !domain.IsObservableCustodyStatus(e.CustodyStatus) {
		return false, nil
	}
	if err := j.events.Store(ctx, e); err != nil {
		return false, fmt.Errorf("reinject: %w", err)
	}
	logging.FromContext(ctx).Info("custody outcome recovered from provider",
		"custody_tx_id", ct.ExternalTxID,
		"custody_status", e.CustodyStatus,
	)
	return true, nil
}

package custody

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go/protocols/horizon/operations"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/index"
	"github.com/josh-kwaku/anchor-gateway/internal/ledger"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/service/observer"
	"github.com/josh-kwaku/anchor-gateway/internal/service/transfer"
)

const (
	defaultBatchSize   = 10
	defaultMaxAttempts = 5
)

// errPermanent marks an event that can never be applied.
var errPermanent = errors.New("custody event cannot be applied")

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type eventQueue interface {
	ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.CustodyEvent, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.CustodyEventStatus) error
}

type correlationRepo interface {
	GetByExternalTxID(ctx context.Context, externalTxID string) (*domain.CustodyTransaction, error)
	SetExternalTxID(ctx context.Context, toAccount, memo, externalTxID string) (*domain.CustodyTransaction, error)
}

// LedgerLookup finds the ledger operations of a transaction by hash.
type LedgerLookup interface {
	TransactionOperations(ctx context.Context, hash string) ([]operations.Operation, error)
}

type Processor struct {
	db          txBeginner
	events      eventQueue
	correlation correlationRepo
	ledger      LedgerLookup
	index       index.Index
	transfers   *transfer.Service
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewProcessor(
	db txBeginner,
	events eventQueue,
	correlation correlationRepo,
	ledgerLookup LedgerLookup,
	idx index.Index,
	transfers *transfer.Service,
	logger *slog.Logger,
	interval time.Duration,
) *Processor {
	return &Processor{
		db:          db,
		events:      events,
		correlation: correlation,
		ledger:      ledgerLookup,
		index:       idx,
		transfers:   transfers,
		logger:      logger,
		interval:    interval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
	}
}

func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("custody event processor started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("custody event processor stopped")
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.logger.Error("custody event poll failed", "error", err)
			}
		}
	}
}

// Poll claims a batch of pending events and applies them. Events that fail
// transiently stay pending until they run out of attempts.
func (p *Processor) Poll(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Poll: begin tx: %w", err)
	}
	defer tx.Rollback()

	events, err := p.events.ClaimPending(ctx, tx, p.batchSize)
	if err != nil {
		return fmt.Errorf("Poll: %w", err)
	}

	for _, event := range events {
		status := p.outcome(ctx, event, p.processEvent(ctx, event))
		if err := p.events.UpdateStatus(ctx, tx, event.ID, status); err != nil {
			return fmt.Errorf("Poll: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Poll: commit: %w", err)
	}
	return nil
}

func (p *Processor) outcome(ctx context.Context, event domain.CustodyEvent, err error) domain.CustodyEventStatus {
	if err == nil {
		return domain.CustodyEventStatusDispatched
	}
	log := p.logger.With("custody_event_id", event.ID, "custody_tx_id", event.CustodyTransactionID)
	if errors.Is(err, errPermanent) || event.Attempts+1 >= p.maxAttempts {
		log.Error("custody event failed", "attempts", event.Attempts+1, "error", err)
		return domain.CustodyEventStatusFailed
	}
	if ctx.Err() == nil {
		log.Warn("custody event failed, will retry", "attempts", event.Attempts+1, "error", err)
	}
	return domain.CustodyEventStatusPending
}

func (p *Processor) processEvent(ctx context.Context, event domain.CustodyEvent) error {
	log := p.logger.With("custody_event_id", event.ID, "custody_tx_id", event.CustodyTransactionID)
	ctx = logging.WithLogger(ctx, log)

	transferID, err := p.correlate(ctx, event)
	if err != nil {
		return fmt.Errorf("processEvent: %w", err)
	}

	t, err := p.transfers.Get(ctx, transferID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("processEvent: transfer %s: %w", transferID, errPermanent)
	}
	if err != nil {
		return fmt.Errorf("processEvent: %w", err)
	}

	action, ok := ActionFor(t, event.CustodyStatus)
	if !ok {
		log.Info("transfer is not waiting on custody, skipping",
			"transfer_id", t.ID,
			"transfer_status", t.Status,
		)
		return nil
	}

	var payment domain.ObservedPayment
	if domain.IsCustodySuccess(event.CustodyStatus) && action != domain.ActionNotifyOffchainFundsReceived {
		payment, err = p.payment(ctx, t, event)
		if err != nil {
			return fmt.Errorf("processEvent: %w", err)
		}
	}

	_, err = p.transfers.Apply(ctx, t.ID, action, Mutation(action, event, payment))
	if errors.Is(err, domain.ErrInvalidTransition) {
		log.Info("transfer moved on before custody event applied", "transfer_id", t.ID, "action", action)
		return nil
	}
	if err != nil {
		return fmt.Errorf("processEvent: %w", err)
	}
	return nil
}

// correlate finds the transfer an event belongs to: first by the provider's
// transaction id, then by destination address and tag, then through the
// active-transfer index.
func (p *Processor) correlate(ctx context.Context, event domain.CustodyEvent) (string, error) {
	ct, err := p.correlation.GetByExternalTxID(ctx, event.CustodyTransactionID)
	if err == nil {
		return ct.TransferID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("correlate: %w", err)
	}

	if event.DestinationAddress == "" {
		return "", fmt.Errorf("correlate: no destination address: %w", errPermanent)
	}

	ct, err = p.correlation.SetExternalTxID(ctx, event.DestinationAddress, event.DestinationTag, event.CustodyTransactionID)
	if err == nil {
		return ct.TransferID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("correlate: %w", err)
	}

	ids, err := p.index.Lookup(ctx, event.DestinationAddress)
	if err != nil {
		return "", fmt.Errorf("correlate: %w", err)
	}
	for _, id := range ids {
		t, err := p.transfers.Get(ctx, id)
		if err != nil {
			continue
		}
		memo := ""
		if t.DepositInfo != nil && t.DepositInfo.Account == event.DestinationAddress {
			memo = t.DepositInfo.Memo
		}
		if memo == event.DestinationTag {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("correlate: no transfer for %s/%s: %w", event.DestinationAddress, event.DestinationTag, errPermanent)
}

// payment resolves the ledger operation behind a successful custody
// transaction. When the ledger cannot produce it a payment is built from the
// custody fields alone.
func (p *Processor) payment(ctx context.Context, t *domain.Transfer, event domain.CustodyEvent) (domain.ObservedPayment, error) {
	if event.TxHash != "" {
		ops, err := p.ledger.TransactionOperations(ctx, event.TxHash)
		switch {
		case err == nil:
			for _, op := range ops {
				pay, ok := ledger.Classify(op)
				if !ok {
					continue
				}
				// the custody hash pins the transaction, so any sender is accepted
				if _, match := observer.NewMatcher(nil).Match(t, pay); match {
					return pay, nil
				}
			}
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.ObservedPayment{}, fmt.Errorf("payment: %w", err)
		}
	}

	logging.FromContext(ctx).Info("ledger transaction not found, using custody data", "tx_hash", event.TxHash)
	return degeneratePayment(t, event), nil
}

func degeneratePayment(t *domain.Transfer, event domain.CustodyEvent) domain.ObservedPayment {
	pay := domain.ObservedPayment{
		ID:              "custody:" + event.CustodyTransactionID,
		Type:            domain.PaymentTypeCustody,
		To:              event.DestinationAddress,
		TransactionHash: event.TxHash,
		Memo:            event.DestinationTag,
		CreatedAt:       event.OccurredAt,
	}
	if event.Amount.Valid {
		pay.Amount = event.Amount.Decimal
	}
	switch {
	case t.Kind() == domain.KindDeposit && t.AmountOut != nil:
		pay.Asset = t.AmountOut.Asset
	case t.AmountIn != nil:
		pay.Asset = t.AmountIn.Asset
	}
	pay.SourceAmount, pay.SourceAsset = pay.Amount, pay.Asset
	return pay
}

// ActionFor maps a custody outcome onto the transfer's current position.
func ActionFor(t *domain.Transfer, custodyStatus string) (domain.Action, bool) {
	if t.Status.IsTerminal() {
		return "", false
	}
	if !domain.IsCustodySuccess(custodyStatus) {
		return domain.ActionNotifyTransactionError, true
	}

	switch t.Kind() {
	case domain.KindDeposit:
		switch t.Status {
		case domain.StatusPendingUserTransferStart:
			return domain.ActionNotifyOffchainFundsReceived, true
		case domain.StatusPendingAnchor, domain.StatusPendingStellar:
			return domain.ActionNotifyOnchainFundsSent, true
		}
	case domain.KindWithdrawal:
		if t.Status == domain.StatusPendingUserTransferStart {
			return domain.ActionNotifyOnchainFundsReceived, true
		}
	case domain.KindSend:
		if t.Status == domain.StatusPendingSender {
			return domain.ActionNotifyOnchainFundsReceived, true
		}
	}
	return "", false
}

// Mutation applies the custody outcome to the transfer.
func Mutation(action domain.Action, event domain.CustodyEvent, payment domain.ObservedPayment) transfer.Mutation {
	return func(t *domain.Transfer, target domain.Status) (domain.Status, error) {
		t.CustodyTransactionID = event.CustodyTransactionID

		switch action {
		case domain.ActionNotifyTransactionError:
			t.Message = fmt.Sprintf("custody transaction %s ended with status %s", event.CustodyTransactionID, event.CustodyStatus)
			return target, nil
		case domain.ActionNotifyOffchainFundsReceived:
			received := event.OccurredAt
			t.TransferReceivedAt = &received
			t.ExternalTransactionID = event.CustodyTransactionID
			return target, nil
		}
		return observer.PaymentMutation(action, payment)(t, target)
	}
}

// Package custody turns signed custody-provider callbacks into transfer
// transitions. Intake verifies and stores each callback; Processor applies
// stored events in the background.
package custody

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
)

type eventCreator interface {
	Create(ctx context.Context, event *domain.CustodyEvent) error
}

type Intake struct {
	verifier Verifier
	events   eventCreator
	now      func() time.Time
}

func NewIntake(verifier Verifier, events eventCreator) *Intake {
	return &Intake{
		verifier: verifier,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type transactionData struct {
	ID                 string              `json:"id"`
	Status             string              `json:"status"`
	SubStatus          string              `json:"subStatus"`
	TxHash             string              `json:"txHash"`
	DestinationAddress string              `json:"destinationAddress"`
	DestinationTag     string              `json:"destinationTag"`
	AssetID            string              `json:"assetId"`
	Amount             decimal.NullDecimal `json:"amount"`
	LastUpdated        int64               `json:"lastUpdated"`
}

type webhookEvent struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      transactionData `json:"data"`
}

func (d transactionData) toEvent(payload []byte, occurred, now time.Time) *domain.CustodyEvent {
	return &domain.CustodyEvent{
		ID:                   uuid.New(),
		CustodyTransactionID: d.ID,
		CustodyStatus:        d.Status,
		DestinationAddress:   d.DestinationAddress,
		DestinationTag:       d.DestinationTag,
		TxHash:               d.TxHash,
		Amount:               d.Amount,
		Payload:              payload,
		Status:               domain.CustodyEventStatusPending,
		OccurredAt:           occurred,
		CreatedAt:            now,
	}
}

func millis(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}

// Receive authenticates and stores one callback. Only a missing signature is
// reported to the caller; every other outcome is logged and acknowledged so
// the sender learns nothing about verification.
func (i *Intake) Receive(ctx context.Context, body []byte, signature string) error {
	log := logging.FromContext(ctx)

	if signature == "" {
		return fmt.Errorf("Receive: %q header is missing or empty: %w", SignatureHeader, domain.ErrBadRequest)
	}

	if err := i.verifier.Verify(body, signature); err != nil {
		log.Warn("custody webhook signature verification failed", "error", err)
		return nil
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		log.Warn("failed to parse custody webhook", "error", err)
		return nil
	}
	if evt.Data.ID == "" {
		log.Warn("custody webhook without transaction id", "type", evt.Type)
		return nil
	}
	if !domain.IsObservableCustodyStatus(evt.Data.Status) {
		log.Debug("custody status has no outcome yet, ignoring",
			"custody_tx_id", evt.Data.ID,
			"custody_status", evt.Data.Status,
		)
		return nil
	}

	now := i.now()
	occurred := millis(evt.Data.LastUpdated, millis(evt.Timestamp, now))
	if err := i.Store(ctx, evt.Data.toEvent(body, occurred, now)); err != nil {
		log.Error("failed to store custody event", "custody_tx_id", evt.Data.ID, "error", err)
	}
	return nil
}

// Store persists an event for the processor. A duplicate is logged and
// swallowed.
func (i *Intake) Store(ctx context.Context, e *domain.CustodyEvent) error {
	log := logging.FromContext(ctx)

	err := i.events.Create(ctx, e)
	if errors.Is(err, domain.ErrDuplicateEvent) {
		log.Info("duplicate custody event received",
			"custody_tx_id", e.CustodyTransactionID,
			"custody_status", e.CustodyStatus,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("Store: %w", err)
	}

	log.Info("custody event stored",
		"custody_event_id", e.ID,
		"custody_tx_id", e.CustodyTransactionID,
		"custody_status", e.CustodyStatus,
	)
	return nil
}

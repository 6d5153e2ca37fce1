// Package notify delivers transfer state changes to the operator's configured sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const EventTransactionStatusChanged = "transaction_status_changed"

// Event is delivered at least once. ID lets sinks drop duplicates.
type Event struct {
	ID        uuid.UUID           `json:"id"`
	Type      string              `json:"type"`
	Action    domain.Action       `json:"action"`
	Timestamp time.Time           `json:"timestamp"`
	Transfer  domain.TransferView `json:"transaction"`
}

func NewEvent(action domain.Action, t *domain.Transfer, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventTransactionStatusChanged,
		Action:    action,
		Timestamp: now,
		Transfer:  t.View(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("Notify: %w", errors.Join(errs...))
	}
	return nil
}

type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }

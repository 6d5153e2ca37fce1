package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CustodyEventStatus string

const (
	CustodyEventStatusPending    CustodyEventStatus = "pending"
	CustodyEventStatusDispatched CustodyEventStatus = "dispatched"
	CustodyEventStatusFailed     CustodyEventStatus = "failed"
)

// Provider-side transaction statuses that carry an outcome. Everything else is intermediate.
const (
	CustodyStatusCompleted = "COMPLETED"
	CustodyStatusFailed    = "FAILED"
	CustodyStatusCancelled = "CANCELLED"
	CustodyStatusBlocked   = "BLOCKED"
	CustodyStatusRejected  = "REJECTED"
)

func IsObservableCustodyStatus(s string) bool {
	switch s {
	case CustodyStatusCompleted, CustodyStatusFailed, CustodyStatusCancelled,
		CustodyStatusBlocked, CustodyStatusRejected:
		return true
	}
	return false
}

func IsCustodySuccess(s string) bool {
	return s == CustodyStatusCompleted
}

// CustodyEvent is one verified callback from the custody provider. The pair
// (CustodyTransactionID, CustodyStatus) is unique.
type CustodyEvent struct {
	ID                   uuid.UUID
	CustodyTransactionID string
	CustodyStatus        string
	DestinationAddress   string
	DestinationTag       string
	TxHash               string
	Amount               decimal.NullDecimal
	Payload              json.RawMessage
	Status               CustodyEventStatus
	Attempts             int
	LastAttempt          *time.Time
	OccurredAt           time.Time
	CreatedAt            time.Time
}

// CustodyTransaction correlates a custody deposit address and memo with the transfer waiting on it.
type CustodyTransaction struct {
	ID           uuid.UUID
	TransferID   string
	ToAccount    string
	Memo         string
	ExternalTxID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package domain

import "time"

type ReconcileCondition string

const (
	ReconcileTrustline      ReconcileCondition = "trustline"
	ReconcileCustodyPayment ReconcileCondition = "custody_payment"
)

type PendingReconciliation struct {
	TransferID string
	Condition  ReconcileCondition
	Account    string
	Asset      string
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (p PendingReconciliation) Expired(now time.Time, timeout time.Duration) bool {
	return now.After(p.CreatedAt.Add(timeout))
}

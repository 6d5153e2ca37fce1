package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageTrustNotSet is recorded when the receiving account never trusted the asset.
const MessageTrustNotSet = "trustline was not established"

// Variant selects the rulebook a transfer follows.
type Variant string

const (
	VariantSep6Deposit     Variant = "sep6-deposit"
	VariantSep6Withdrawal  Variant = "sep6-withdrawal"
	VariantSep24Deposit    Variant = "sep24-deposit"
	VariantSep24Withdrawal Variant = "sep24-withdrawal"
	VariantSep31Send       Variant = "sep31-send"
)

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindSend       Kind = "send"
)

func (v Variant) Kind() Kind {
	switch v {
	case VariantSep6Deposit, VariantSep24Deposit:
		return KindDeposit
	case VariantSep6Withdrawal, VariantSep24Withdrawal:
		return KindWithdrawal
	case VariantSep31Send:
		return KindSend
	}
	return ""
}

func (v Variant) Valid() bool {
	return v.Kind() != ""
}

type DepositInfo struct {
	Account  string `json:"account"`
	Memo     string `json:"memo,omitempty"`
	MemoType string `json:"memo_type,omitempty"`
}

func (d *DepositInfo) Clone() *DepositInfo {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

type RefundPayment struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	CreatedAt time.Time       `json:"created_at"`
}

type Refunds struct {
	AmountRefunded decimal.Decimal `json:"amount_refunded"`
	AmountFee      decimal.Decimal `json:"amount_fee"`
	Payments       []RefundPayment `json:"payments"`
}

// Upsert replaces the payment with the same id, or appends it, then recomputes the totals.
func (r *Refunds) Upsert(p RefundPayment) {
	replaced := false
	for i := range r.Payments {
		if r.Payments[i].ID == p.ID {
			r.Payments[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		r.Payments = append(r.Payments, p)
	}

	total := decimal.Zero
	fee := decimal.Zero
	for _, rp := range r.Payments {
		total = total.Add(rp.Amount).Add(rp.Fee)
		fee = fee.Add(rp.Fee)
	}
	r.AmountRefunded = total
	r.AmountFee = fee
}

func (r *Refunds) clone() *Refunds {
	if r == nil {
		return nil
	}
	c := *r
	c.Payments = append([]RefundPayment(nil), r.Payments...)
	return &c
}

// LedgerPayment records a ledger operation already applied to a transfer.
type LedgerPayment struct {
	OperationID     string          `json:"operation_id"`
	TransactionHash string          `json:"transaction_hash"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Amount          decimal.Decimal `json:"amount"`
	Asset           string          `json:"asset"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Transfer struct {
	ID      string
	Variant Variant
	Status  Status

	AmountIn       *Amount
	AmountOut      *Amount
	AmountFee      *Amount
	AmountExpected *Amount

	ExternalTransactionID string
	LedgerTransactionID   string
	CustodyTransactionID  string

	Refunds *Refunds

	SourceAccount      string
	DestinationAccount string
	DepositInfo        *DepositInfo
	LedgerPayments     []LedgerPayment

	Message string

	StartedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
	TransferReceivedAt *time.Time

	Version int64
}

func (t *Transfer) Kind() Kind {
	return t.Variant.Kind()
}

// Clone returns a deep copy so a mutation can be discarded without touching the original.
func (t *Transfer) Clone() *Transfer {
	c := *t
	c.AmountIn = t.AmountIn.Clone()
	c.AmountOut = t.AmountOut.Clone()
	c.AmountFee = t.AmountFee.Clone()
	c.AmountExpected = t.AmountExpected.Clone()
	c.Refunds = t.Refunds.clone()
	c.DepositInfo = t.DepositInfo.Clone()
	c.LedgerPayments = append([]LedgerPayment(nil), t.LedgerPayments...)
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.TransferReceivedAt != nil {
		v := *t.TransferReceivedAt
		c.TransferReceivedAt = &v
	}
	return &c
}

func (t *Transfer) HasLedgerPayment(operationID string) bool {
	for _, p := range t.LedgerPayments {
		if p.OperationID == operationID {
			return true
		}
	}
	return false
}

// CustodyCorrelation returns the address and memo a custody provider reports
// for funds that move this transfer forward. Deposits waiting on the user are
// funded at their deposit instructions; everything else matches the watched
// ledger account.
func (t *Transfer) CustodyCorrelation() (account, memo string, ok bool) {
	if t.Kind() == KindDeposit && t.Status == StatusPendingUserTransferStart {
		if t.DepositInfo == nil || t.DepositInfo.Account == "" {
			return "", "", false
		}
		return t.DepositInfo.Account, t.DepositInfo.Memo, true
	}

	account, ok = t.WatchedAccount()
	if !ok {
		return "", "", false
	}
	if t.DepositInfo != nil && account == t.DepositInfo.Account {
		memo = t.DepositInfo.Memo
	}
	return account, memo, true
}

// WatchedAccount returns the ledger account whose payments can move this transfer forward
// in its current status.
func (t *Transfer) WatchedAccount() (string, bool) {
	switch t.Kind() {
	case KindDeposit:
		if (t.Status == StatusPendingAnchor || t.Status == StatusPendingStellar) && t.DestinationAccount != "" {
			return t.DestinationAccount, true
		}
	case KindWithdrawal:
		if t.Status == StatusPendingUserTransferStart && t.DepositInfo != nil && t.DepositInfo.Account != "" {
			return t.DepositInfo.Account, true
		}
	case KindSend:
		if t.Status == StatusPendingSender && t.DepositInfo != nil && t.DepositInfo.Account != "" {
			return t.DepositInfo.Account, true
		}
	}
	return "", false
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypePayment          PaymentType = "payment"
	PaymentTypePathPayment      PaymentType = "path_payment"
	PaymentTypeContractTransfer PaymentType = "contract_transfer"
	// PaymentTypeCustody marks a payment synthesized from custody data alone,
	// when the ledger transaction could not be found.
	PaymentTypeCustody PaymentType = "custody"
)

// ObservedPayment is an immutable ledger settlement fact. ID is the ledger operation id.
type ObservedPayment struct {
	ID              string
	Type            PaymentType
	From            string
	To              string
	Amount          decimal.Decimal
	Asset           string
	SourceAmount    decimal.Decimal
	SourceAsset     string
	TransactionHash string
	Memo            string
	MemoType        string
	PagingToken     string
	CreatedAt       time.Time
}

func (p ObservedPayment) LedgerPayment() LedgerPayment {
	return LedgerPayment{
		OperationID:     p.ID,
		TransactionHash: p.TransactionHash,
		From:            p.From,
		To:              p.To,
		Amount:          p.Amount,
		Asset:           p.Asset,
		CreatedAt:       p.CreatedAt,
	}
}

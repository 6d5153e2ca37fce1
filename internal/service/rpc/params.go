package rpc

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

type AmountParam struct {
	Amount string `json:"amount"`
	Asset  string `json:"asset"`
}

type RefundParam struct {
	ID        string       `json:"id"`
	Amount    *AmountParam `json:"amount"`
	AmountFee *AmountParam `json:"amount_fee"`
}

// Params is the union of every method's parameters. Handlers read only the
// fields they care about.
type Params struct {
	TransactionID         string       `json:"transaction_id"`
	Message               string       `json:"message,omitempty"`
	AmountIn              *AmountParam `json:"amount_in,omitempty"`
	AmountOut             *AmountParam `json:"amount_out,omitempty"`
	AmountFee             *AmountParam `json:"amount_fee,omitempty"`
	AmountExpected        *AmountParam `json:"amount_expected,omitempty"`
	ExternalTransactionID string       `json:"external_transaction_id,omitempty"`
	LedgerTransactionID   string       `json:"stellar_transaction_id,omitempty"`
	FundsReceivedAt       *time.Time   `json:"funds_received_at,omitempty"`
	Refund                *RefundParam `json:"refund,omitempty"`
	DestinationAccount    string       `json:"destination_account,omitempty"`
	Memo                  string       `json:"memo,omitempty"`
	MemoType              string       `json:"memo_type,omitempty"`
	Success               *bool        `json:"success,omitempty"`
}

// amountValidator is satisfied by the asset catalog.
type amountValidator interface {
	Validate(a *domain.Amount) error
}

func paramError(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrInvalidParams)...)
}

func toAmount(field string, p *AmountParam, assets amountValidator) (*domain.Amount, error) {
	if p == nil {
		return nil, nil
	}
	a, err := domain.NewAmount(p.Amount, p.Asset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if assets != nil {
		if err := assets.Validate(a); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
	}
	return a, nil
}

type amounts struct {
	in, out, fee, expected *domain.Amount
}

func (p *Params) amounts(assets amountValidator) (amounts, error) {
	var a amounts
	var err error
	if a.in, err = toAmount("amount_in", p.AmountIn, assets); err != nil {
		return a, err
	}
	if a.out, err = toAmount("amount_out", p.AmountOut, assets); err != nil {
		return a, err
	}
	if a.fee, err = toAmount("amount_fee", p.AmountFee, assets); err != nil {
		return a, err
	}
	if a.expected, err = toAmount("amount_expected", p.AmountExpected, assets); err != nil {
		return a, err
	}
	return a, nil
}

// allOrNone rejects a partial set of amount_in, amount_out and amount_fee.
func (a amounts) allOrNone() (bool, error) {
	set := 0
	for _, v := range []*domain.Amount{a.in, a.out, a.fee} {
		if v != nil {
			set++
		}
	}
	switch set {
	case 0:
		return false, nil
	case 3:
		return true, nil
	}
	return false, paramError("all or none of amount_in, amount_out and amount_fee should be set")
}

func (a amounts) applyTo(t *domain.Transfer) {
	if a.in != nil {
		t.AmountIn = a.in
	}
	if a.out != nil {
		t.AmountOut = a.out
	}
	if a.fee != nil {
		t.AmountFee = a.fee
	}
	if a.expected != nil {
		t.AmountExpected = a.expected
	}
}

func (r *RefundParam) payment(asset string, now time.Time, assets amountValidator) (domain.RefundPayment, error) {
	if r == nil {
		return domain.RefundPayment{}, paramError("refund is required")
	}
	amount, err := toAmount("refund.amount", r.Amount, assets)
	if err != nil {
		return domain.RefundPayment{}, err
	}
	fee, err := toAmount("refund.amount_fee", r.AmountFee, assets)
	if err != nil {
		return domain.RefundPayment{}, err
	}
	if amount == nil || fee == nil {
		return domain.RefundPayment{}, paramError("refund.amount and refund.amount_fee are required")
	}
	if amount.Asset != asset || fee.Asset != asset {
		return domain.RefundPayment{}, paramError("refund asset does not match amount_in asset %s", asset)
	}
	return domain.RefundPayment{ID: strings.TrimSpace(r.ID), Amount: amount.Value, Fee: fee.Value, CreatedAt: now}, nil
}

func refundTotal(p domain.RefundPayment) decimal.Decimal {
	return p.Amount.Add(p.Fee)
}

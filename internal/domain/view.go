package domain

import "time"

type AmountView struct {
	Amount string `json:"amount"`
	Asset  string `json:"asset"`
}

type RefundPaymentView struct {
	ID     string     `json:"id"`
	Amount AmountView `json:"amount"`
	Fee    AmountView `json:"fee"`
}

type RefundsView struct {
	AmountRefunded AmountView          `json:"amount_refunded"`
	AmountFee      AmountView          `json:"amount_fee"`
	Payments       []RefundPaymentView `json:"payments"`
}

// TransferView is the projection returned to RPC callers and sent to notification sinks.
type TransferView struct {
	ID                    string       `json:"id"`
	Variant               Variant      `json:"sep"`
	Kind                  Kind         `json:"kind"`
	Status                Status       `json:"status"`
	AmountIn              *AmountView  `json:"amount_in,omitempty"`
	AmountOut             *AmountView  `json:"amount_out,omitempty"`
	AmountFee             *AmountView  `json:"amount_fee,omitempty"`
	AmountExpected        *AmountView  `json:"amount_expected,omitempty"`
	ExternalTransactionID string       `json:"external_transaction_id,omitempty"`
	LedgerTransactionID   string       `json:"stellar_transaction_id,omitempty"`
	CustodyTransactionID  string       `json:"custody_transaction_id,omitempty"`
	Refunds               *RefundsView `json:"refunds,omitempty"`
	SourceAccount         string       `json:"source_account,omitempty"`
	DestinationAccount    string       `json:"destination_account,omitempty"`
	DepositInfo           *DepositInfo `json:"deposit_info,omitempty"`
	Message               string       `json:"message,omitempty"`
	StartedAt             time.Time    `json:"started_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
	CompletedAt           *time.Time   `json:"completed_at,omitempty"`
	TransferReceivedAt    *time.Time   `json:"transfer_received_at,omitempty"`
}

func (t *Transfer) View() TransferView {
	v := TransferView{
		ID:                    t.ID,
		Variant:               t.Variant,
		Kind:                  t.Kind(),
		Status:                t.Status,
		AmountIn:              amountView(t.AmountIn),
		AmountOut:             amountView(t.AmountOut),
		AmountFee:             amountView(t.AmountFee),
		AmountExpected:        amountView(t.AmountExpected),
		ExternalTransactionID: t.ExternalTransactionID,
		LedgerTransactionID:   t.LedgerTransactionID,
		CustodyTransactionID:  t.CustodyTransactionID,
		SourceAccount:         t.SourceAccount,
		DestinationAccount:    t.DestinationAccount,
		DepositInfo:           t.DepositInfo,
		Message:               t.Message,
		StartedAt:             t.StartedAt,
		UpdatedAt:             t.UpdatedAt,
		CompletedAt:           t.CompletedAt,
		TransferReceivedAt:    t.TransferReceivedAt,
	}

	if t.Refunds != nil {
		asset := ""
		if t.AmountIn != nil {
			asset = t.AmountIn.Asset
		}
		rv := &RefundsView{
			AmountRefunded: AmountView{Amount: t.Refunds.AmountRefunded.String(), Asset: asset},
			AmountFee:      AmountView{Amount: t.Refunds.AmountFee.String(), Asset: asset},
		}
		for _, p := range t.Refunds.Payments {
			rv.Payments = append(rv.Payments, RefundPaymentView{
				ID:     p.ID,
				Amount: AmountView{Amount: p.Amount.String(), Asset: asset},
				Fee:    AmountView{Amount: p.Fee.String(), Asset: asset},
			})
		}
		v.Refunds = rv
	}
	return v
}

func amountView(a *Amount) *AmountView {
	if a == nil {
		return nil
	}
	return &AmountView{Amount: a.Value.String(), Asset: a.Asset}
}

package rpc

import (
	"time"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

// Handler applies one RPC method's field mutations to a copy of the transfer
// and picks the target status. The state machine has already accepted the
// (variant, status, method) triple when Apply runs.
type Handler interface {
	Action() domain.Action
	Validate(p *Params) error
	Apply(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error)
}

type handler struct {
	action   domain.Action
	validate func(p *Params) error
	apply    func(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error)
}

func (h handler) Action() domain.Action { return h.action }

func (h handler) Validate(p *Params) error {
	if h.validate == nil {
		return nil
	}
	return h.validate(p)
}

func (h handler) Apply(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error) {
	if p.Message != "" {
		t.Message = p.Message
	}
	if h.apply == nil {
		return target, nil
	}
	return h.apply(t, p, target, now)
}

// Handlers is the explicit method table handed to the dispatcher.
type Handlers map[domain.Action]Handler

// NewHandlers builds the method table. assets may be nil, in which case only
// the asset scheme is checked.
func NewHandlers(assets amountValidator) Handlers {
	b := &builder{assets: assets}
	list := []Handler{
		b.requestOffchainFunds(),
		b.requestOnchainFunds(),
		b.notifyOffchainFundsReceived(),
		b.notifyOnchainFundsReceived(),
		b.notifyOnchainFundsSent(domain.ActionNotifyOnchainFundsSent, true),
		b.notifyOnchainFundsSent(domain.ActionDoStellarPayment, false),
		b.notifyOffchainFunds(domain.ActionNotifyOffchainFundsPending),
		b.notifyOffchainFunds(domain.ActionNotifyOffchainFundsAvailable),
		b.notifyOffchainFunds(domain.ActionNotifyOffchainFundsSent),
		b.notifyRefundPending(),
		b.notifyRefundSent(),
		b.doStellarRefund(),
		b.notifyAmountsUpdated(),
		b.notifyInteractiveFlowCompleted(),
		b.notifyTrustSet(),
		handler{action: domain.ActionRequestTrust},
		handler{action: domain.ActionNotifyCustomerInfoUpdated},
		handler{action: domain.ActionNotifyTransactionOnHold},
		handler{action: domain.ActionNotifyTransactionRecovery},
		handler{action: domain.ActionNotifyTransactionExpired, validate: requireMessage},
		handler{action: domain.ActionNotifyTransactionError, validate: requireMessage},
	}

	out := make(Handlers, len(list))
	for _, h := range list {
		out[h.Action()] = h
	}
	return out
}

type builder struct {
	assets amountValidator
}

func requireMessage(p *Params) error {
	if p.Message == "" {
		return paramError("message is required")
	}
	return nil
}

func (b *builder) checkAmounts(p *Params) error {
	a, err := p.amounts(b.assets)
	if err != nil {
		return err
	}
	_, err = a.allOrNone()
	return err
}

func (b *builder) requestOffchainFunds() Handler {
	return handler{
		action:   domain.ActionRequestOffchainFunds,
		validate: b.checkAmounts,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, _ time.Time) (domain.Status, error) {
			a, err := p.amounts(b.assets)
			if err != nil {
				return "", err
			}
			set, err := a.allOrNone()
			if err != nil {
				return "", err
			}
			if !set && (t.AmountIn == nil || t.AmountOut == nil || t.AmountFee == nil) {
				return "", paramError("amount_in, amount_out and amount_fee are required")
			}
			a.applyTo(t)
			if t.AmountExpected == nil {
				t.AmountExpected = t.AmountIn.Clone()
			}

			// custody deposit address the user funds, optional
			if p.DestinationAccount != "" {
				if t.DepositInfo != nil && (p.DestinationAccount != t.DepositInfo.Account || p.Memo != t.DepositInfo.Memo) {
					return "", paramError("deposit instructions are already set")
				}
				t.DepositInfo = &domain.DepositInfo{Account: p.DestinationAccount, Memo: p.Memo, MemoType: p.MemoType}
			}
			return target, nil
		},
	}
}

func (b *builder) requestOnchainFunds() Handler {
	return handler{
		action:   domain.ActionRequestOnchainFunds,
		validate: b.checkAmounts,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, _ time.Time) (domain.Status, error) {
			a, err := p.amounts(b.assets)
			if err != nil {
				return "", err
			}
			set, err := a.allOrNone()
			if err != nil {
				return "", err
			}
			if !set && (t.AmountIn == nil || t.AmountOut == nil || t.AmountFee == nil) {
				return "", paramError("amount_in, amount_out and amount_fee are required")
			}
			a.applyTo(t)
			if t.AmountExpected == nil {
				t.AmountExpected = t.AmountIn.Clone()
			}

			switch {
			case t.DepositInfo != nil:
				if p.DestinationAccount != "" && (p.DestinationAccount != t.DepositInfo.Account || p.Memo != t.DepositInfo.Memo) {
					return "", paramError("deposit instructions are already set")
				}
			case p.DestinationAccount != "":
				t.DepositInfo = &domain.DepositInfo{Account: p.DestinationAccount, Memo: p.Memo, MemoType: p.MemoType}
			default:
				return "", paramError("destination_account is required")
			}
			return target, nil
		},
	}
}

func (b *builder) notifyOffchainFundsReceived() Handler {
	return handler{
		action:   domain.ActionNotifyOffchainFundsReceived,
		validate: b.checkAmounts,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error) {
			a, err := p.amounts(b.assets)
			if err != nil {
				return "", err
			}
			a.applyTo(t)
			if p.ExternalTransactionID != "" {
				t.ExternalTransactionID = p.ExternalTransactionID
			}
			received := now
			if p.FundsReceivedAt != nil {
				received = p.FundsReceivedAt.UTC()
			}
			t.TransferReceivedAt = &received
			return target, nil
		},
	}
}

func (b *builder) notifyOnchainFundsReceived() Handler {
	return handler{
		action: domain.ActionNotifyOnchainFundsReceived,
		validate: func(p *Params) error {
			if p.LedgerTransactionID == "" {
				return paramError("stellar_transaction_id is required")
			}
			return b.checkAmounts(p)
		},
		apply: func(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error) {
			a, err := p.amounts(b.assets)
			if err != nil {
				return "", err
			}
			a.applyTo(t)
			t.LedgerTransactionID = p.LedgerTransactionID
			received := now
			if p.FundsReceivedAt != nil {
				received = p.FundsReceivedAt.UTC()
			}
			t.TransferReceivedAt = &received
			return target, nil
		},
	}
}

func (b *builder) notifyOnchainFundsSent(action domain.Action, requireHash bool) Handler {
	return handler{
		action: action,
		validate: func(p *Params) error {
			if requireHash && p.LedgerTransactionID == "" {
				return paramError("stellar_transaction_id is required")
			}
			return nil
		},
		apply: func(t *domain.Transfer, p *Params, target domain.Status, _ time.Time) (domain.Status, error) {
			if p.LedgerTransactionID != "" {
				t.LedgerTransactionID = p.LedgerTransactionID
			}
			return target, nil
		},
	}
}

func (b *builder) notifyOffchainFunds(action domain.Action) Handler {
	return handler{
		action: action,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, _ time.Time) (domain.Status, error) {
			if p.ExternalTransactionID != "" {
				t.ExternalTransactionID = p.ExternalTransactionID
			}
			return target, nil
		},
	}
}

func (b *builder) notifyAmountsUpdated() Handler {
	return handler{
		action: domain.ActionNotifyAmountsUpdated,
		validate: func(p *Params) error {
			if p.AmountOut == nil || p.AmountFee == nil {
				return paramError("amount_out and amount_fee are required")
			}
			_, err := p.amounts(b.assets)
			return err
		},
		apply: func(t *domain.Transfer, p *Params, target domain.Status, _ time.Time) (domain.Status, error) {
			a, err := p.amounts(b.assets)
			if err != nil {
				return "", err
			}
			t.AmountOut = a.out
			t.AmountFee = a.fee
			return target, nil
		},
	}
}

func (b *builder) notifyInteractiveFlowCompleted() Handler {
	return handler{
		action:   domain.ActionNotifyInteractiveFlowCompleted,
		validate: b.checkAmounts,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, _ time.Time) (domain.Status, error) {
			a, err := p.amounts(b.assets)
			if err != nil {
				return "", err
			}
			a.applyTo(t)
			return target, nil
		},
	}
}

func (b *builder) notifyTrustSet() Handler {
	return handler{
		action: domain.ActionNotifyTrustSet,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, _ time.Time) (domain.Status, error) {
			if p.Success != nil && !*p.Success && p.Message == "" {
				t.Message = domain.MessageTrustNotSet
			}
			return target, nil
		},
	}
}

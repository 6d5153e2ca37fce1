package rpc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

func partialRefundStatus(t *domain.Transfer) domain.Status {
	if t.Kind() == domain.KindSend {
		return domain.StatusPendingReceiver
	}
	return domain.StatusPendingAnchor
}

func requireRefund(p *Params) error {
	if p.Refund == nil {
		return paramError("refund is required")
	}
	return nil
}

func requireRefundID(p *Params) error {
	if err := requireRefund(p); err != nil {
		return err
	}
	if p.Refund.ID == "" {
		return paramError("refund.id is required")
	}
	return nil
}

func refundAsset(t *domain.Transfer) (string, error) {
	if t.AmountIn == nil {
		return "", paramError("transfer has no amount_in to refund")
	}
	return t.AmountIn.Asset, nil
}

// upsertRefund records the payment and reports whether the cumulative refund
// now equals amount_in. Exceeding amount_in is rejected.
func (b *builder) upsertRefund(t *domain.Transfer, p *Params, now time.Time) (bool, error) {
	asset, err := refundAsset(t)
	if err != nil {
		return false, err
	}
	payment, err := p.Refund.payment(asset, now, b.assets)
	if err != nil {
		return false, err
	}

	refunds := t.Refunds
	if refunds == nil {
		refunds = &domain.Refunds{AmountRefunded: decimal.Zero, AmountFee: decimal.Zero}
	}
	refunds.Upsert(payment)

	switch refunds.AmountRefunded.Cmp(t.AmountIn.Value) {
	case 1:
		return false, paramError("refund amount exceeds amount_in")
	case 0:
		t.Refunds = refunds
		return true, nil
	}
	t.Refunds = refunds
	return false, nil
}

func (b *builder) notifyRefundSent() Handler {
	return handler{
		action:   domain.ActionNotifyRefundSent,
		validate: requireRefundID,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error) {
			full, err := b.upsertRefund(t, p, now)
			if err != nil {
				return "", err
			}
			if full {
				return domain.StatusRefunded, nil
			}
			return partialRefundStatus(t), nil
		},
	}
}

func (b *builder) notifyRefundPending() Handler {
	return handler{
		action:   domain.ActionNotifyRefundPending,
		validate: requireRefundID,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error) {
			if _, err := b.upsertRefund(t, p, now); err != nil {
				return "", err
			}
			return target, nil
		},
	}
}

// doStellarRefund checks the requested refund fits; the payment itself is
// recorded once the ledger confirms it through notify_refund_sent.
func (b *builder) doStellarRefund() Handler {
	return handler{
		action:   domain.ActionDoStellarRefund,
		validate: requireRefund,
		apply: func(t *domain.Transfer, p *Params, target domain.Status, now time.Time) (domain.Status, error) {
			asset, err := refundAsset(t)
			if err != nil {
				return "", err
			}
			payment, err := p.Refund.payment(asset, now, b.assets)
			if err != nil {
				return "", err
			}
			already := decimal.Zero
			if t.Refunds != nil {
				already = t.Refunds.AmountRefunded
			}
			if already.Add(refundTotal(payment)).GreaterThan(t.AmountIn.Value) {
				return "", paramError("refund amount exceeds amount_in")
			}
			return target, nil
		},
	}
}

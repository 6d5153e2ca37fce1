package observer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/index"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/service/transfer"
)

const amountMismatchMessage = "the amount received does not match the expected amount"

// SenderLookup resolves the account the anchor pays deposits of an asset from.
type SenderLookup interface {
	DistributionAccount(asset string) (string, bool)
}

// Matcher decides which action, if any, a payment triggers on a transfer.
type Matcher struct {
	senders SenderLookup
}

// NewMatcher builds a matcher. With a nil lookup, or for an asset without a
// distribution account, deposits accept payments from any sender.
func NewMatcher(senders SenderLookup) Matcher {
	return Matcher{senders: senders}
}

// Match picks the action a payment triggers on t. Withdrawals and sends are
// matched on deposit account, memo and asset. Deposits are matched on the
// anchor's sending account, the destination, the exact amount owed and the
// recorded ledger transaction when there is one.
func (m Matcher) Match(t *domain.Transfer, p domain.ObservedPayment) (domain.Action, bool) {
	switch t.Kind() {
	case domain.KindDeposit:
		if t.Status != domain.StatusPendingAnchor && t.Status != domain.StatusPendingStellar {
			return "", false
		}
		if t.AmountOut == nil || p.To != t.DestinationAccount {
			return "", false
		}
		if p.Asset != t.AmountOut.Asset || !p.Amount.Equal(t.AmountOut.Value) {
			return "", false
		}
		if t.LedgerTransactionID != "" && p.TransactionHash != t.LedgerTransactionID {
			return "", false
		}
		if m.senders != nil {
			if sender, ok := m.senders.DistributionAccount(p.Asset); ok && p.From != sender {
				return "", false
			}
		}
		return domain.ActionNotifyOnchainFundsSent, true

	case domain.KindWithdrawal, domain.KindSend:
		waiting := domain.StatusPendingUserTransferStart
		if t.Kind() == domain.KindSend {
			waiting = domain.StatusPendingSender
		}
		if t.Status != waiting || t.DepositInfo == nil {
			return "", false
		}
		if p.To != t.DepositInfo.Account {
			return "", false
		}
		if t.DepositInfo.Memo != "" && p.Memo != t.DepositInfo.Memo {
			return "", false
		}
		if t.AmountIn != nil && t.AmountIn.Asset != p.Asset {
			return "", false
		}
		return domain.ActionNotifyOnchainFundsReceived, true
	}
	return "", false
}

// TransferListener matches observed payments to the transfers waiting on
// them and moves those transfers forward. A payment settles at most one
// transfer.
type TransferListener struct {
	index     index.Index
	transfers *transfer.Service
	matcher   Matcher
}

func NewTransferListener(idx index.Index, transfers *transfer.Service, matcher Matcher) *TransferListener {
	return &TransferListener{index: idx, transfers: transfers, matcher: matcher}
}

func (l *TransferListener) OnPayment(ctx context.Context, p domain.ObservedPayment) error {
	if p.ID != "" {
		settled, err := l.transfers.FindByLedgerPayment(ctx, p.ID)
		switch {
		case err == nil:
			logging.FromContext(ctx).Debug("payment already settled a transfer",
				"operation_id", p.ID, "transfer_id", settled.ID)
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("OnPayment: %w", err)
		}
	}

	candidates, err := l.candidates(ctx, p)
	if err != nil {
		return fmt.Errorf("OnPayment: %w", err)
	}

	for _, t := range candidates {
		action, ok := l.matcher.Match(t, p)
		if !ok {
			continue
		}
		settled, err := l.apply(ctx, t.ID, action, p)
		if err != nil {
			return fmt.Errorf("OnPayment: %w", err)
		}
		if settled {
			return nil
		}
	}
	return nil
}

// candidates loads every indexed transfer on either side of the payment,
// oldest first.
func (l *TransferListener) candidates(ctx context.Context, p domain.ObservedPayment) ([]*domain.Transfer, error) {
	log := logging.FromContext(ctx).With("operation_id", p.ID)

	seen := make(map[string]bool)
	var out []*domain.Transfer
	for _, account := range accountsOf(p) {
		ids, err := l.index.Lookup(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("candidates: lookup %s: %w", account, err)
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true

			t, err := l.transfers.Get(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				log.Warn("indexed transfer no longer exists", "transfer_id", id)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("candidates: %w", err)
			}
			out = append(out, t)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func accountsOf(p domain.ObservedPayment) []string {
	if p.From == "" || p.From == p.To {
		return []string{p.To}
	}
	return []string{p.To, p.From}
}

func (l *TransferListener) apply(ctx context.Context, id string, action domain.Action, p domain.ObservedPayment) (bool, error) {
	log := logging.FromContext(ctx).With("transfer_id", id, "operation_id", p.ID)

	_, err := l.transfers.Apply(ctx, id, action, PaymentMutation(action, p))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Info("transfer already moved on, payment ignored", "action", action)
		return false, nil
	}
	return false, fmt.Errorf("apply %s: %w", id, err)
}

// PaymentMutation records the payment on the transfer. A payment already
// recorded makes the mutation report ErrUnchanged.
func PaymentMutation(action domain.Action, p domain.ObservedPayment) transfer.Mutation {
	return func(t *domain.Transfer, target domain.Status) (domain.Status, error) {
		if p.ID != "" && t.HasLedgerPayment(p.ID) {
			return "", transfer.ErrUnchanged
		}
		if p.ID != "" {
			t.LedgerPayments = append(t.LedgerPayments, p.LedgerPayment())
		}
		if p.TransactionHash != "" {
			t.LedgerTransactionID = p.TransactionHash
		}

		if action == domain.ActionNotifyOnchainFundsReceived {
			received := p.CreatedAt
			if received.IsZero() {
				received = time.Now().UTC()
			}
			t.TransferReceivedAt = &received
			if !p.Amount.IsZero() {
				expected := t.AmountExpected
				if expected == nil {
					expected = t.AmountIn
				}
				t.AmountIn = &domain.Amount{Value: p.Amount, Asset: p.Asset}
				if expected != nil && !expected.Value.Equal(p.Amount) {
					t.Message = amountMismatchMessage
				}
			}
		}
		return target, nil
	}
}

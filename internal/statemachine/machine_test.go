package statemachine

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

var allStatuses = []domain.Status{
	domain.StatusIncomplete, domain.StatusPendingAnchor, domain.StatusPendingTrust, domain.StatusPendingUser,
	domain.StatusPendingUserTransferStart, domain.StatusPendingUserTransferComplete, domain.StatusPendingExternal,
	domain.StatusPendingStellar, domain.StatusPendingSender, domain.StatusPendingReceiver,
	domain.StatusPendingTransactionInfoUpdate, domain.StatusPendingCustomerInfoUpdate, domain.StatusOnHold,
	domain.StatusCompleted, domain.StatusRefunded, domain.StatusExpired, domain.StatusError,
}

var allVariants = []domain.Variant{
	domain.VariantSep6Deposit, domain.VariantSep6Withdrawal,
	domain.VariantSep24Deposit, domain.VariantSep24Withdrawal, domain.VariantSep31Send,
}

func TestDecide(t *testing.T) {
	m := New()

	tests := []struct {
		name    string
		variant domain.Variant
		current domain.Status
		action  domain.Action
		want    Outcome
		next    domain.Status
		errIs   error
	}{
		{
			name:    "deposit request offchain funds",
			variant: domain.VariantSep24Deposit,
			current: domain.StatusIncomplete,
			action:  domain.ActionRequestOffchainFunds,
			want:    Applied,
			next:    domain.StatusPendingUserTransferStart,
		},
		{
			name:    "deposit funds received",
			variant: domain.VariantSep24Deposit,
			current: domain.StatusPendingUserTransferStart,
			action:  domain.ActionNotifyOffchainFundsReceived,
			want:    Applied,
			next:    domain.StatusPendingAnchor,
		},
		{
			name:    "duplicate funds received is a no-op",
			variant: domain.VariantSep24Deposit,
			current: domain.StatusPendingAnchor,
			action:  domain.ActionNotifyOffchainFundsReceived,
			want:    NoOp,
			next:    domain.StatusPendingAnchor,
		},
		{
			name:    "replay of completing action on completed transfer",
			variant: domain.VariantSep24Deposit,
			current: domain.StatusCompleted,
			action:  domain.ActionNotifyOnchainFundsSent,
			want:    NoOp,
			next:    domain.StatusCompleted,
		},
		{
			name:    "out of order funds sent",
			variant: domain.VariantSep24Deposit,
			current: domain.StatusPendingUserTransferStart,
			action:  domain.ActionNotifyOnchainFundsSent,
			want:    Rejected,
			errIs:   domain.ErrInvalidTransition,
		},
		{
			name:    "terminal status rejects other actions",
			variant: domain.VariantSep24Deposit,
			current: domain.StatusCompleted,
			action:  domain.ActionNotifyTransactionError,
			want:    Rejected,
			errIs:   domain.ErrTerminalStatus,
		},
		{
			name:    "withdrawal-only action on a deposit",
			variant: domain.VariantSep24Deposit,
			current: domain.StatusIncomplete,
			action:  domain.ActionRequestOnchainFunds,
			want:    Rejected,
			errIs:   domain.ErrUnknownAction,
		},
		{
			name:    "interactive flow is sep24 only",
			variant: domain.VariantSep6Deposit,
			current: domain.StatusIncomplete,
			action:  domain.ActionNotifyInteractiveFlowCompleted,
			want:    Rejected,
			errIs:   domain.ErrUnknownAction,
		},
		{
			name:    "sep31 receives onchain funds",
			variant: domain.VariantSep31Send,
			current: domain.StatusPendingSender,
			action:  domain.ActionNotifyOnchainFundsReceived,
			want:    Applied,
			next:    domain.StatusPendingReceiver,
		},
		{
			name:    "self loop applies",
			variant: domain.VariantSep6Withdrawal,
			current: domain.StatusPendingAnchor,
			action:  domain.ActionNotifyAmountsUpdated,
			want:    Applied,
			next:    domain.StatusPendingAnchor,
		},
		{
			name:    "unknown action",
			variant: domain.VariantSep6Withdrawal,
			current: domain.StatusPendingAnchor,
			action:  "notify_something_else",
			want:    Rejected,
			errIs:   domain.ErrUnknownAction,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := m.Decide(tc.variant, tc.current, tc.action)
			assert.Equal(t, tc.want, d.Outcome)
			if tc.want == Rejected {
				require.Error(t, d.Reason)
				assert.ErrorIs(t, d.Reason, tc.errIs)
				return
			}
			assert.NoError(t, d.Reason)
			assert.Equal(t, tc.next, d.Next)
		})
	}
}

func TestDecide_NeverLeavesTerminal(t *testing.T) {
	m := New()
	for _, v := range allVariants {
		for _, action := range m.Actions(v) {
			for _, s := range allStatuses {
				if !s.IsTerminal() {
					continue
				}
				d := m.Decide(v, s, action)
				assert.NotEqual(t, Applied, d.Outcome, "%s %s %s", v, s, action)
				if d.Outcome == NoOp {
					assert.Equal(t, s, d.Next)
				}
			}
		}
	}
}

func TestDecide_RejectsEverythingOutsideTable(t *testing.T) {
	m := New()
	for _, v := range allVariants {
		for _, action := range m.Actions(v) {
			tr, ok := m.Transition(v, action)
			require.True(t, ok)
			for _, s := range allStatuses {
				d := m.Decide(v, s, action)
				switch {
				case slices.Contains(tr.From, s):
					assert.Equal(t, Applied, d.Outcome, "%s %s %s", v, s, action)
				case s == tr.To || (s.IsTerminal() && slices.Contains(tr.Alt, s)):
					assert.Equal(t, NoOp, d.Outcome, "%s %s %s", v, s, action)
				default:
					assert.Equal(t, Rejected, d.Outcome, "%s %s %s", v, s, action)
					assert.ErrorIs(t, d.Reason, domain.ErrInvalidTransition)
				}
			}
		}
	}
}

func TestAllows(t *testing.T) {
	m := New()
	assert.True(t, m.Allows(domain.VariantSep24Deposit, domain.ActionNotifyRefundSent, domain.StatusRefunded))
	assert.True(t, m.Allows(domain.VariantSep24Deposit, domain.ActionNotifyRefundSent, domain.StatusPendingAnchor))
	assert.True(t, m.Allows(domain.VariantSep31Send, domain.ActionNotifyRefundSent, domain.StatusPendingReceiver))
	assert.False(t, m.Allows(domain.VariantSep24Deposit, domain.ActionNotifyRefundSent, domain.StatusCompleted))
	assert.False(t, m.Allows(domain.VariantSep24Deposit, domain.ActionRequestOnchainFunds, domain.StatusPendingUserTransferStart))
}

func TestNewWithTables_RejectsTerminalSource(t *testing.T) {
	_, err := NewWithTables(map[domain.Variant]Table{
		domain.VariantSep24Deposit: {
			domain.ActionNotifyTransactionRecovery: {
				From: []domain.Status{domain.StatusError},
				To:   domain.StatusPendingAnchor,
			},
		},
	})
	require.Error(t, err)
}

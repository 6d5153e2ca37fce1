package statemachine

import "github.com/josh-kwaku/anchor-gateway/internal/domain"

type statuses = []domain.Status

var (
	depositActive = statuses{
		domain.StatusIncomplete, domain.StatusPendingAnchor, domain.StatusPendingTrust,
		domain.StatusPendingUser, domain.StatusPendingUserTransferStart, domain.StatusPendingExternal,
		domain.StatusPendingStellar, domain.StatusPendingCustomerInfoUpdate, domain.StatusOnHold,
	}
	withdrawalActive = statuses{
		domain.StatusIncomplete, domain.StatusPendingAnchor, domain.StatusPendingUser,
		domain.StatusPendingUserTransferStart, domain.StatusPendingUserTransferComplete,
		domain.StatusPendingExternal, domain.StatusPendingStellar, domain.StatusPendingCustomerInfoUpdate,
		domain.StatusOnHold,
	}
	sendActive = statuses{
		domain.StatusPendingSender, domain.StatusPendingReceiver, domain.StatusPendingExternal,
		domain.StatusPendingStellar, domain.StatusPendingCustomerInfoUpdate,
		domain.StatusPendingTransactionInfoUpdate,
	}
)

func without(set statuses, drop ...domain.Status) statuses {
	out := make(statuses, 0, len(set))
outer:
	for _, s := range set {
		for _, d := range drop {
			if s == d {
				continue outer
			}
		}
		out = append(out, s)
	}
	return out
}

func depositTable() Table {
	return Table{
		domain.ActionRequestOffchainFunds: {
			From: statuses{domain.StatusIncomplete, domain.StatusPendingAnchor},
			To:   domain.StatusPendingUserTransferStart,
		},
		domain.ActionNotifyOffchainFundsReceived: {
			From: statuses{domain.StatusPendingUserTransferStart, domain.StatusOnHold, domain.StatusPendingExternal},
			To:   domain.StatusPendingAnchor,
		},
		domain.ActionRequestTrust: {
			From: statuses{domain.StatusPendingAnchor},
			To:   domain.StatusPendingTrust,
		},
		domain.ActionNotifyTrustSet: {
			From: statuses{domain.StatusPendingTrust},
			To:   domain.StatusPendingAnchor,
		},
		domain.ActionDoStellarPayment: {
			From: statuses{domain.StatusPendingAnchor, domain.StatusPendingTrust},
			To:   domain.StatusPendingStellar,
		},
		domain.ActionNotifyOnchainFundsSent: {
			From: statuses{domain.StatusPendingAnchor, domain.StatusPendingStellar},
			To:   domain.StatusCompleted,
		},
		domain.ActionNotifyRefundPending: {
			From: statuses{domain.StatusPendingAnchor},
			To:   domain.StatusPendingExternal,
		},
		domain.ActionNotifyRefundSent: {
			From: statuses{domain.StatusPendingAnchor, domain.StatusPendingExternal, domain.StatusOnHold},
			To:   domain.StatusRefunded,
			Alt:  statuses{domain.StatusPendingAnchor},
		},
		domain.ActionNotifyAmountsUpdated: {
			From: statuses{domain.StatusPendingAnchor},
			To:   domain.StatusPendingAnchor,
		},
		domain.ActionNotifyTransactionOnHold: {
			From: without(depositActive, domain.StatusOnHold, domain.StatusIncomplete),
			To:   domain.StatusOnHold,
		},
		domain.ActionNotifyTransactionRecovery: {
			From: statuses{domain.StatusOnHold},
			To:   domain.StatusPendingAnchor,
		},
		domain.ActionNotifyTransactionExpired: {
			From: depositActive,
			To:   domain.StatusExpired,
		},
		domain.ActionNotifyTransactionError: {
			From: depositActive,
			To:   domain.StatusError,
		},
	}
}

func withdrawalTable() Table {
	return Table{
		domain.ActionRequestOnchainFunds: {
			From: statuses{domain.StatusIncomplete, domain.StatusPendingAnchor},
			To:   domain.StatusPendingUserTransferStart,
		},
		domain.ActionNotifyOnchainFundsReceived: {
			From: statuses{domain.StatusPendingUserTransferStart},
			To:   domain.StatusPendingAnchor,
		},
		domain.ActionNotifyOffchainFundsPending: {
			From: statuses{domain.StatusPendingAnchor},
			To:   domain.StatusPendingExternal,
		},
		domain.ActionNotifyOffchainFundsAvailable: {
			From: statuses{domain.StatusPendingAnchor, domain.StatusPendingExternal},
			To:   domain.StatusPendingUserTransferComplete,
		},
		domain.ActionNotifyOffchainFundsSent: {
			From: statuses{domain.StatusPendingAnchor, domain.StatusPendingExternal, domain.StatusPendingUserTransferComplete},
			To:   domain.StatusCompleted,
		},
		domain.ActionNotifyRefundPending: {
			From: statuses{domain.StatusPendingAnchor},
			To:   domain.StatusPendingStellar,
		},
		domain.ActionDoStellarRefund: {
			From: statuses{domain.StatusPendingAnchor, domain.StatusOnHold},
			To:   domain.StatusPendingStellar,
		},
		domain.ActionNotifyRefundSent: {
			From: statuses{domain.StatusPendingAnchor, domain.StatusPendingStellar, domain.StatusOnHold},
			To:   domain.StatusRefunded,
			Alt:  statuses{domain.StatusPendingAnchor},
		},
		domain.ActionNotifyAmountsUpdated: {
			From: statuses{domain.StatusPendingAnchor},
			To:   domain.StatusPendingAnchor,
		},
		domain.ActionNotifyTransactionOnHold: {
			From: without(withdrawalActive, domain.StatusOnHold, domain.StatusIncomplete),
			To:   domain.StatusOnHold,
		},
		domain.ActionNotifyTransactionRecovery: {
			From: statuses{domain.StatusOnHold},
			To:   domain.StatusPendingAnchor,
		},
		domain.ActionNotifyTransactionExpired: {
			From: withdrawalActive,
			To:   domain.StatusExpired,
		},
		domain.ActionNotifyTransactionError: {
			From: withdrawalActive,
			To:   domain.StatusError,
		},
	}
}

func sendTable() Table {
	return Table{
		domain.ActionNotifyOnchainFundsReceived: {
			From: statuses{domain.StatusPendingSender},
			To:   domain.StatusPendingReceiver,
		},
		domain.ActionNotifyCustomerInfoUpdated: {
			From: statuses{domain.StatusPendingCustomerInfoUpdate, domain.StatusPendingTransactionInfoUpdate},
			To:   domain.StatusPendingReceiver,
		},
		domain.ActionNotifyOffchainFundsPending: {
			From: statuses{domain.StatusPendingReceiver},
			To:   domain.StatusPendingExternal,
		},
		domain.ActionNotifyOffchainFundsSent: {
			From: statuses{domain.StatusPendingReceiver, domain.StatusPendingExternal},
			To:   domain.StatusCompleted,
		},
		domain.ActionNotifyRefundPending: {
			From: statuses{domain.StatusPendingReceiver},
			To:   domain.StatusPendingStellar,
		},
		domain.ActionNotifyRefundSent: {
			From: statuses{domain.StatusPendingReceiver, domain.StatusPendingStellar},
			To:   domain.StatusRefunded,
			Alt:  statuses{domain.StatusPendingReceiver},
		},
		domain.ActionDoStellarRefund: {
			From: statuses{domain.StatusPendingReceiver},
			To:   domain.StatusPendingStellar,
		},
		domain.ActionNotifyAmountsUpdated: {
			From: statuses{domain.StatusPendingReceiver},
			To:   domain.StatusPendingReceiver,
		},
		domain.ActionNotifyTransactionExpired: {
			From: sendActive,
			To:   domain.StatusExpired,
		},
		domain.ActionNotifyTransactionError: {
			From: sendActive,
			To:   domain.StatusError,
		},
	}
}

// sep6 has no interactive flow; sep24 has no customer info loop.
func defaultTables() map[domain.Variant]Table {
	sep6Deposit := depositTable()
	sep6Deposit[domain.ActionNotifyCustomerInfoUpdated] = Transition{
		From: statuses{domain.StatusPendingCustomerInfoUpdate},
		To:   domain.StatusPendingAnchor,
	}

	sep24Deposit := depositTable()
	sep24Deposit[domain.ActionNotifyInteractiveFlowCompleted] = Transition{
		From: statuses{domain.StatusIncomplete},
		To:   domain.StatusPendingAnchor,
	}

	sep6Withdrawal := withdrawalTable()
	sep6Withdrawal[domain.ActionNotifyCustomerInfoUpdated] = Transition{
		From: statuses{domain.StatusPendingCustomerInfoUpdate},
		To:   domain.StatusPendingAnchor,
	}

	sep24Withdrawal := withdrawalTable()
	sep24Withdrawal[domain.ActionNotifyInteractiveFlowCompleted] = Transition{
		From: statuses{domain.StatusIncomplete},
		To:   domain.StatusPendingAnchor,
	}

	return map[domain.Variant]Table{
		domain.VariantSep6Deposit:     sep6Deposit,
		domain.VariantSep24Deposit:    sep24Deposit,
		domain.VariantSep6Withdrawal:  sep6Withdrawal,
		domain.VariantSep24Withdrawal: sep24Withdrawal,
		domain.VariantSep31Send:       sendTable(),
	}
}

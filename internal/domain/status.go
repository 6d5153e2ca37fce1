package domain

type Status string

const (
	StatusIncomplete                   Status = "incomplete"
	StatusPendingAnchor                Status = "pending_anchor"
	StatusPendingTrust                 Status = "pending_trust"
	StatusPendingUser                  Status = "pending_user"
	StatusPendingUserTransferStart     Status = "pending_user_transfer_start"
	StatusPendingUserTransferComplete  Status = "pending_user_transfer_complete"
	StatusPendingExternal              Status = "pending_external"
	StatusPendingStellar               Status = "pending_stellar"
	StatusPendingSender                Status = "pending_sender"
	StatusPendingReceiver              Status = "pending_receiver"
	StatusPendingTransactionInfoUpdate Status = "pending_transaction_info_update"
	StatusPendingCustomerInfoUpdate    Status = "pending_customer_info_update"
	StatusOnHold                       Status = "on_hold"
	StatusCompleted                    Status = "completed"
	StatusRefunded                     Status = "refunded"
	StatusExpired                      Status = "expired"
	StatusError                        Status = "error"
)

// IsTerminal reports whether no further mutation of a transfer in this status is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusExpired, StatusError:
		return true
	}
	return false
}

// Action is the name of a state-changing operation. Action names double as RPC method names.
type Action string

const (
	ActionRequestOffchainFunds           Action = "request_offchain_funds"
	ActionRequestOnchainFunds            Action = "request_onchain_funds"
	ActionNotifyOffchainFundsReceived    Action = "notify_offchain_funds_received"
	ActionNotifyOnchainFundsReceived     Action = "notify_onchain_funds_received"
	ActionNotifyOffchainFundsPending     Action = "notify_offchain_funds_pending"
	ActionNotifyOffchainFundsAvailable   Action = "notify_offchain_funds_available"
	ActionNotifyOffchainFundsSent        Action = "notify_offchain_funds_sent"
	ActionNotifyOnchainFundsSent         Action = "notify_onchain_funds_sent"
	ActionDoStellarPayment               Action = "do_stellar_payment"
	ActionRequestTrust                   Action = "request_trust"
	ActionNotifyTrustSet                 Action = "notify_trust_set"
	ActionNotifyRefundPending            Action = "notify_refund_pending"
	ActionNotifyRefundSent               Action = "notify_refund_sent"
	ActionDoStellarRefund                Action = "do_stellar_refund"
	ActionNotifyAmountsUpdated           Action = "notify_amounts_updated"
	ActionNotifyInteractiveFlowCompleted Action = "notify_interactive_flow_completed"
	ActionNotifyCustomerInfoUpdated      Action = "notify_customer_info_updated"
	ActionNotifyTransactionOnHold        Action = "notify_transaction_on_hold"
	ActionNotifyTransactionExpired       Action = "notify_transaction_expired"
	ActionNotifyTransactionError         Action = "notify_transaction_error"
	ActionNotifyTransactionRecovery      Action = "notify_transaction_recovery"
)

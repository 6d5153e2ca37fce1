package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/anchor-gateway/internal/asset"
	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/repository"
	"github.com/josh-kwaku/anchor-gateway/internal/service/observer"
	"github.com/josh-kwaku/anchor-gateway/internal/service/rpc"
	"github.com/josh-kwaku/anchor-gateway/internal/testutil"
)

func rpcCall(t *testing.T, d *rpc.Dispatcher, method string, params map[string]any) domain.TransferView {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	out := d.Handle(context.Background(), []rpc.Request{{JSONRPC: rpc.Version, ID: json.RawMessage(`1`), Method: method, Params: raw}})
	require.Len(t, out, 1)
	require.Nil(t, out[0].Error, "%s failed: %+v", method, out[0].Error)
	v, ok := out[0].Result.(domain.TransferView)
	require.True(t, ok)
	return v
}

// A deposit travels from incomplete to completed across the RPC endpoint,
// the ledger observer and a late custody callback.
func TestDepositScenario(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	f := setupCustody(t, db, stubLedger{err: domain.ErrNotFound})

	catalog, err := asset.Parse([]byte(fmt.Sprintf("assets:\n  - id: %s\n    decimals: 7\n  - id: %s\n    decimals: 2\n", testutil.USDC, testutil.USD)))
	require.NoError(t, err)
	dispatcher := rpc.NewDispatcher(f.transfers, rpc.NewHandlers(catalog), rpc.DefaultBatchLimit, time.Second)

	tr := testutil.SeedTransfer(t, db, testutil.NewTransfer(domain.VariantSep24Deposit, domain.StatusIncomplete))

	v := rpcCall(t, dispatcher, "request_offchain_funds", map[string]any{
		"transaction_id": tr.ID,
		"amount_in":      map[string]string{"amount": "100", "asset": testutil.USD},
		"amount_out":     map[string]string{"amount": "99", "asset": testutil.USDC},
		"amount_fee":     map[string]string{"amount": "1", "asset": testutil.USD},
	})
	assert.Equal(t, domain.StatusPendingUserTransferStart, v.Status)
	require.NotNil(t, v.AmountExpected)

	v = rpcCall(t, dispatcher, "notify_offchain_funds_received", map[string]any{
		"transaction_id":          tr.ID,
		"external_transaction_id": "bank-777",
	})
	assert.Equal(t, domain.StatusPendingAnchor, v.Status)

	got, err := repository.NewTransferRepository(db).Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "bank-777", got.ExternalTransactionID)
	require.NotNil(t, got.TransferReceivedAt)

	watched, err := f.index.Lookup(ctx, testutil.UserAcct)
	require.NoError(t, err)
	assert.Contains(t, watched, tr.ID)

	payment := domain.ObservedPayment{
		ID:              "op-900",
		Type:            domain.PaymentTypePayment,
		From:            testutil.AnchorAcct,
		To:              testutil.UserAcct,
		Amount:          decimal.RequireFromString("99"),
		Asset:           testutil.USDC,
		TransactionHash: "hash-900",
		CreatedAt:       time.Now().UTC(),
	}
	listener := observer.NewTransferListener(f.index, f.transfers, observer.NewMatcher(nil))
	require.NoError(t, listener.OnPayment(ctx, payment))

	done, err := repository.NewTransferRepository(db).Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, "hash-900", done.LedgerTransactionID)
	require.NotNil(t, done.CompletedAt)

	// the custody provider confirms the same payment after the ledger did
	body := []byte(`{"type":"TRANSACTION_STATUS_UPDATED","timestamp":1767261600000,"data":{` +
		`"id":"fb-900","status":"COMPLETED","txHash":"hash-900",` +
		`"destinationAddress":"` + testutil.UserAcct + `","amount":99}}`)
	sig := f.keys.sign(t, body)
	require.NoError(t, f.intake.Receive(ctx, body, sig))
	require.NoError(t, f.intake.Receive(ctx, body, sig))
	require.NoError(t, f.processor.Poll(ctx))

	assert.Equal(t, []domain.CustodyEventStatus{domain.CustodyEventStatusDispatched}, custodyEventStatuses(t, db, "fb-900"))

	after, err := repository.NewTransferRepository(db).Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Version, after.Version)
	assert.True(t, after.CompletedAt.Equal(*done.CompletedAt))
}

// The user funds a deposit at the custody address; the provider's callback is
// what moves it to funds received.
func TestDepositFundsReceivedByCustodyWebhook(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	f := setupCustody(t, db, stubLedger{err: domain.ErrNotFound})

	catalog, err := asset.Parse([]byte(fmt.Sprintf("assets:\n  - id: %s\n    decimals: 7\n  - id: %s\n    decimals: 2\n", testutil.USDC, testutil.USD)))
	require.NoError(t, err)
	dispatcher := rpc.NewDispatcher(f.transfers, rpc.NewHandlers(catalog), rpc.DefaultBatchLimit, time.Second)

	tr := testutil.SeedTransfer(t, db, testutil.NewTransfer(domain.VariantSep24Deposit, domain.StatusIncomplete))

	v := rpcCall(t, dispatcher, "request_offchain_funds", map[string]any{
		"transaction_id":      tr.ID,
		"amount_in":           map[string]string{"amount": "100", "asset": testutil.USD},
		"amount_out":          map[string]string{"amount": "99", "asset": testutil.USDC},
		"amount_fee":          map[string]string{"amount": "1", "asset": testutil.USD},
		"destination_account": testutil.AnchorAcct,
		"memo":                "dep-500",
		"memo_type":           "text",
	})
	assert.Equal(t, domain.StatusPendingUserTransferStart, v.Status)

	body := []byte(`{"type":"TRANSACTION_STATUS_UPDATED","timestamp":1767261600000,"data":{` +
		`"id":"fb-500","status":"COMPLETED",` +
		`"destinationAddress":"` + testutil.AnchorAcct + `","destinationTag":"dep-500","amount":100}}`)
	require.NoError(t, f.intake.Receive(ctx, body, f.keys.sign(t, body)))
	require.NoError(t, f.processor.Poll(ctx))

	assert.Equal(t, []domain.CustodyEventStatus{domain.CustodyEventStatusDispatched}, custodyEventStatuses(t, db, "fb-500"))

	got, err := repository.NewTransferRepository(db).Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingAnchor, got.Status)
	assert.Equal(t, "fb-500", got.ExternalTransactionID)
	assert.Equal(t, "fb-500", got.CustodyTransactionID)
	require.NotNil(t, got.TransferReceivedAt)
	assert.True(t, got.TransferReceivedAt.Equal(time.UnixMilli(1767261600000)))

	// the deposit is now waiting on the anchor's ledger payment to the user
	watched, err := f.index.Lookup(ctx, testutil.UserAcct)
	require.NoError(t, err)
	assert.Contains(t, watched, tr.ID)
}

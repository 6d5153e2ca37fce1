package custody

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/index"
	"github.com/josh-kwaku/anchor-gateway/internal/repository"
	"github.com/josh-kwaku/anchor-gateway/internal/service/transfer"
	"github.com/josh-kwaku/anchor-gateway/internal/statemachine"
	"github.com/josh-kwaku/anchor-gateway/internal/testutil"
)

func TestActionFor(t *testing.T) {
	tests := []struct {
		variant domain.Variant
		status  domain.Status
		custody string
		want    domain.Action
		ok      bool
	}{
		{domain.VariantSep24Deposit, domain.StatusPendingUserTransferStart, domain.CustodyStatusCompleted, domain.ActionNotifyOffchainFundsReceived, true},
		{domain.VariantSep24Deposit, domain.StatusPendingAnchor, domain.CustodyStatusCompleted, domain.ActionNotifyOnchainFundsSent, true},
		{domain.VariantSep6Deposit, domain.StatusPendingStellar, domain.CustodyStatusCompleted, domain.ActionNotifyOnchainFundsSent, true},
		{domain.VariantSep24Withdrawal, domain.StatusPendingUserTransferStart, domain.CustodyStatusCompleted, domain.ActionNotifyOnchainFundsReceived, true},
		{domain.VariantSep31Send, domain.StatusPendingSender, domain.CustodyStatusCompleted, domain.ActionNotifyOnchainFundsReceived, true},
		{domain.VariantSep31Send, domain.StatusPendingSender, domain.CustodyStatusRejected, domain.ActionNotifyTransactionError, true},
		{domain.VariantSep24Withdrawal, domain.StatusPendingAnchor, domain.CustodyStatusCompleted, "", false},
		{domain.VariantSep24Withdrawal, domain.StatusCompleted, domain.CustodyStatusFailed, "", false},
	}
	for _, tc := range tests {
		t.Run(string(tc.variant)+"/"+string(tc.status)+"/"+tc.custody, func(t *testing.T) {
			got, ok := ActionFor(testutil.NewTransfer(tc.variant, tc.status), tc.custody)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMutation_Error(t *testing.T) {
	tr := testutil.NewTransfer(domain.VariantSep24Withdrawal, domain.StatusPendingUserTransferStart)
	event := domain.CustodyEvent{CustodyTransactionID: "fb-1", CustodyStatus: domain.CustodyStatusBlocked}

	next, err := Mutation(domain.ActionNotifyTransactionError, event, domain.ObservedPayment{})(tr, domain.StatusError)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, next)
	assert.Equal(t, "fb-1", tr.CustodyTransactionID)
	assert.Contains(t, tr.Message, domain.CustodyStatusBlocked)
}

func TestMutation_OffchainFundsReceived(t *testing.T) {
	tr := testutil.NewTransfer(domain.VariantSep24Deposit, domain.StatusPendingUserTransferStart)
	occurred := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	event := domain.CustodyEvent{CustodyTransactionID: "fb-7", CustodyStatus: domain.CustodyStatusCompleted, OccurredAt: occurred}

	next, err := Mutation(domain.ActionNotifyOffchainFundsReceived, event, domain.ObservedPayment{})(tr, domain.StatusPendingAnchor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingAnchor, next)
	assert.Equal(t, "fb-7", tr.ExternalTransactionID)
	assert.Equal(t, "fb-7", tr.CustodyTransactionID)
	require.NotNil(t, tr.TransferReceivedAt)
	assert.Equal(t, occurred, *tr.TransferReceivedAt)
}

type stubLedger struct {
	ops []operations.Operation
	err error
}

func (s stubLedger) TransactionOperations(context.Context, string) ([]operations.Operation, error) {
	return s.ops, s.err
}

type custodyFixture struct {
	db        *sql.DB
	intake    *Intake
	processor *Processor
	keys      keyPair
	events    *repository.CustodyEventRepository
	transfers *transfer.Service
	index     index.Index
}

func setupCustody(t *testing.T, db *sql.DB, lookup LedgerLookup) *custodyFixture {
	t.Helper()
	keys := newKeyPair(t)
	verifier, err := NewRSAVerifier(keys.publicPEM)
	require.NoError(t, err)

	transfers := repository.NewTransferRepository(db)
	correlation := repository.NewCustodyTransactionRepository(db)
	idx := index.NewMemory()
	svc := transfer.NewService(transfer.Deps{
		Store:   transfers,
		Machine: statemachine.New(),
		Index:   idx,
		Custody: correlation,
	})
	events := repository.NewCustodyEventRepository(db)

	return &custodyFixture{
		db:        db,
		intake:    NewIntake(verifier, events),
		processor: NewProcessor(repository.NewDB(db), events, correlation, lookup, idx, svc, slog.Default(), time.Second),
		keys:      keys,
		events:    events,
		transfers: svc,
		index:     idx,
	}
}

func seedCorrelation(t *testing.T, db *sql.DB, tr *domain.Transfer) {
	t.Helper()
	now := time.Now().UTC()
	err := repository.NewCustodyTransactionRepository(db).Upsert(context.Background(), &domain.CustodyTransaction{
		ID:         uuid.New(),
		TransferID: tr.ID,
		ToAccount:  tr.DepositInfo.Account,
		Memo:       tr.DepositInfo.Memo,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
}

func custodyEventStatuses(t *testing.T, db *sql.DB, custodyTxID string) []domain.CustodyEventStatus {
	t.Helper()
	rows, err := db.Query(`SELECT status FROM custody_events WHERE custody_transaction_id = $1`, custodyTxID)
	require.NoError(t, err)
	defer rows.Close()
	var out []domain.CustodyEventStatus
	for rows.Next() {
		var s domain.CustodyEventStatus
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestProcessor_WithdrawalFundsReceivedEndToEnd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	f := setupCustody(t, db, stubLedger{err: domain.ErrNotFound})

	tr := testutil.NewTransfer(domain.VariantSep24Withdrawal, domain.StatusPendingUserTransferStart)
	tr.AmountIn = testutil.Amount("10.5", testutil.USDC)
	testutil.SeedTransfer(t, db, tr)
	seedCorrelation(t, db, tr)

	body := []byte(`{"type":"TRANSACTION_STATUS_UPDATED","timestamp":1767261600000,"data":{` +
		`"id":"fb-100","status":"COMPLETED","txHash":"hash-100",` +
		`"destinationAddress":"` + tr.DepositInfo.Account + `","destinationTag":"` + tr.DepositInfo.Memo + `","amount":10.5}}`)
	sig := f.keys.sign(t, body)

	require.NoError(t, f.intake.Receive(ctx, body, sig))
	require.NoError(t, f.intake.Receive(ctx, body, sig), "redelivery")
	require.Len(t, custodyEventStatuses(t, db, "fb-100"), 1)

	require.NoError(t, f.processor.Poll(ctx))

	assert.Equal(t, domain.StatusPendingAnchor, testutil.GetTransferStatus(t, db, tr.ID))
	assert.Equal(t, []domain.CustodyEventStatus{domain.CustodyEventStatusDispatched}, custodyEventStatuses(t, db, "fb-100"))

	got, err := repository.NewTransferRepository(db).Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "fb-100", got.CustodyTransactionID)
	assert.Equal(t, "hash-100", got.LedgerTransactionID)
	require.Len(t, got.LedgerPayments, 1)
	assert.Equal(t, "custody:fb-100", got.LedgerPayments[0].OperationID)

	// a second poll finds nothing left to do
	require.NoError(t, f.processor.Poll(ctx))
	got2, err := repository.NewTransferRepository(db).Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Version, got2.Version)
}

func TestProcessor_FailureMovesTransferToError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	f := setupCustody(t, db, stubLedger{})

	tr := testutil.NewTransfer(domain.VariantSep31Send, domain.StatusPendingSender)
	testutil.SeedTransfer(t, db, tr)
	seedCorrelation(t, db, tr)

	require.NoError(t, f.intake.Store(ctx, &domain.CustodyEvent{
		ID:                   uuid.New(),
		CustodyTransactionID: "fb-200",
		CustodyStatus:        domain.CustodyStatusRejected,
		DestinationAddress:   tr.DepositInfo.Account,
		DestinationTag:       tr.DepositInfo.Memo,
		Payload:              []byte(`{}`),
		Status:               domain.CustodyEventStatusPending,
		OccurredAt:           time.Now().UTC(),
		CreatedAt:            time.Now().UTC(),
	}))

	require.NoError(t, f.processor.Poll(ctx))
	assert.Equal(t, domain.StatusError, testutil.GetTransferStatus(t, db, tr.ID))
}

func TestProcessor_UncorrelatedEventFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	f := setupCustody(t, db, stubLedger{})

	require.NoError(t, f.intake.Store(ctx, &domain.CustodyEvent{
		ID:                   uuid.New(),
		CustodyTransactionID: "fb-300",
		CustodyStatus:        domain.CustodyStatusCompleted,
		DestinationAddress:   "GNOBODY",
		Payload:              []byte(`{}`),
		Status:               domain.CustodyEventStatusPending,
		OccurredAt:           time.Now().UTC(),
		CreatedAt:            time.Now().UTC(),
	}))

	require.NoError(t, f.processor.Poll(ctx))
	assert.Equal(t, []domain.CustodyEventStatus{domain.CustodyEventStatusFailed}, custodyEventStatuses(t, db, "fb-300"))
}

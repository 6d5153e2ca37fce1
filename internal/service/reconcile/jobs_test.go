package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/index"
	"github.com/josh-kwaku/anchor-gateway/internal/service/transfer"
	"github.com/josh-kwaku/anchor-gateway/internal/statemachine"
	"github.com/josh-kwaku/anchor-gateway/internal/testutil"
)

const timeoutMessage = "the receiving account did not establish a trustline in time"

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeTrustlines struct {
	mu     sync.Mutex
	result bool
	err    error
	calls  int
}

func (f *fakeTrustlines) HasTrustline(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type jobFixture struct {
	store   *testutil.TransferStore
	recon   *testutil.ReconciliationStore
	svc     *transfer.Service
	clock   time.Time
	pending *domain.Transfer
}

// setupPendingTrust moves a deposit into pending_trust at t0 through the
// service so the reconciliation record is registered the normal way.
func setupPendingTrust(t *testing.T) *jobFixture {
	t.Helper()
	tr := testutil.NewTransfer(domain.VariantSep24Deposit, domain.StatusPendingAnchor)
	tr.AmountOut = testutil.Amount("50", testutil.USDC)

	f := &jobFixture{
		store:   testutil.NewTransferStore(tr),
		recon:   testutil.NewReconciliationStore(),
		clock:   t0,
		pending: tr,
	}
	f.svc = transfer.NewService(transfer.Deps{
		Store:           f.store,
		Machine:         statemachine.New(),
		Index:           index.NewMemory(),
		Reconciliations: f.recon,
		Now:             func() time.Time { return f.clock },
	})

	_, err := f.svc.Apply(context.Background(), tr.ID, domain.ActionRequestTrust, nil)
	require.NoError(t, err)
	rec, ok := f.recon.Get(tr.ID, domain.ReconcileTrustline)
	require.True(t, ok)
	assert.Equal(t, testutil.USDC, rec.Asset)
	assert.Equal(t, tr.DestinationAccount, rec.Account)
	return f
}

func (f *jobFixture) trustlineJob(checker TrustlineChecker) *TrustlineJob {
	j := NewTrustlineJob(f.recon, checker, f.svc, TrustlineConfig{
		Interval:       time.Minute,
		Timeout:        60 * time.Minute,
		TimeoutMessage: timeoutMessage,
	})
	j.now = func() time.Time { return f.clock }
	return j
}

func (f *jobFixture) status(t *testing.T) *domain.Transfer {
	t.Helper()
	got, err := f.store.Get(context.Background(), f.pending.ID)
	require.NoError(t, err)
	return got
}

func TestTrustlineJob_TimesOutExactlyOnce(t *testing.T) {
	f := setupPendingTrust(t)
	job := f.trustlineJob(&fakeTrustlines{})
	ctx := context.Background()
	savesBefore := f.store.Saves()

	f.clock = t0.Add(30 * time.Minute)
	require.NoError(t, job.Run(ctx))
	rec, ok := f.recon.Get(f.pending.ID, domain.ReconcileTrustline)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, domain.StatusPendingTrust, f.status(t).Status)

	f.clock = t0.Add(61 * time.Minute)
	require.NoError(t, job.Run(ctx))
	got := f.status(t)
	assert.Equal(t, domain.StatusPendingAnchor, got.Status)
	assert.Equal(t, timeoutMessage, got.Message)
	_, ok = f.recon.Get(f.pending.ID, domain.ReconcileTrustline)
	assert.False(t, ok)

	f.clock = t0.Add(62 * time.Minute)
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, savesBefore+1, f.store.Saves())
}

func TestTrustlineJob_Established(t *testing.T) {
	f := setupPendingTrust(t)
	job := f.trustlineJob(&fakeTrustlines{result: true})

	require.NoError(t, job.Run(context.Background()))

	got := f.status(t)
	assert.Equal(t, domain.StatusPendingAnchor, got.Status)
	assert.Empty(t, got.Message)
	_, ok := f.recon.Get(f.pending.ID, domain.ReconcileTrustline)
	assert.False(t, ok)
}

func TestTrustlineJob_AlreadyHandled(t *testing.T) {
	f := setupPendingTrust(t)
	_, err := f.svc.Apply(context.Background(), f.pending.ID, domain.ActionNotifyTrustSet, nil)
	require.NoError(t, err)
	saves := f.store.Saves()

	require.NoError(t, f.trustlineJob(&fakeTrustlines{result: true}).Run(context.Background()))

	assert.Equal(t, saves, f.store.Saves())
	_, ok := f.recon.Get(f.pending.ID, domain.ReconcileTrustline)
	assert.False(t, ok, "record of a transfer that moved on is dropped")
}

func TestTrustlineJob_LookupFailureLeavesRecord(t *testing.T) {
	f := setupPendingTrust(t)
	f.clock = t0.Add(30 * time.Minute)

	require.NoError(t, f.trustlineJob(&fakeTrustlines{err: errors.New("horizon down")}).Run(context.Background()))

	rec, ok := f.recon.Get(f.pending.ID, domain.ReconcileTrustline)
	require.True(t, ok)
	assert.Zero(t, rec.Attempts)
	assert.Equal(t, domain.StatusPendingTrust, f.status(t).Status)
}

func TestTrustlineJob_TimesOutWhileLookupKeepsFailing(t *testing.T) {
	f := setupPendingTrust(t)
	checker := &fakeTrustlines{err: domain.ErrNotFound}
	job := f.trustlineJob(checker)
	ctx := context.Background()
	savesBefore := f.store.Saves()

	f.clock = t0.Add(5 * time.Hour)
	for range 3 {
		require.NoError(t, job.Run(ctx))
	}

	got := f.status(t)
	assert.Equal(t, domain.StatusPendingAnchor, got.Status)
	assert.Equal(t, timeoutMessage, got.Message)
	_, ok := f.recon.Get(f.pending.ID, domain.ReconcileTrustline)
	assert.False(t, ok)
	assert.Equal(t, savesBefore+1, f.store.Saves())
	assert.Zero(t, checker.calls, "an expired record is not checked against the ledger")
}

func TestTrustlineJob_TimeoutReportsTrustNotSet(t *testing.T) {
	f := setupPendingTrust(t)
	job := NewTrustlineJob(f.recon, &fakeTrustlines{}, f.svc, TrustlineConfig{Interval: time.Minute, Timeout: time.Hour})
	job.now = func() time.Time { return f.clock }

	f.clock = t0.Add(61 * time.Minute)
	require.NoError(t, job.Run(context.Background()))

	got := f.status(t)
	assert.Equal(t, domain.StatusPendingAnchor, got.Status)
	assert.Equal(t, domain.MessageTrustNotSet, got.Message)
}

type fakeCustodyClient struct {
	event *domain.CustodyEvent
	err   error
}

func (f fakeCustodyClient) TransactionStatus(context.Context, string) (*domain.CustodyEvent, error) {
	return f.event, f.err
}

type fakeCorrelation struct{ ct *domain.CustodyTransaction }

func (f fakeCorrelation) GetByTransferID(context.Context, string) (*domain.CustodyTransaction, error) {
	if f.ct == nil {
		return nil, domain.ErrNotFound
	}
	return f.ct, nil
}

type recordingSink struct{ events []*domain.CustodyEvent }

func (s *recordingSink) Store(_ context.Context, e *domain.CustodyEvent) error {
	s.events = append(s.events, e)
	return nil
}

func pendingStellar(t *testing.T, f *jobFixture) {
	t.Helper()
	tr := testutil.NewTransfer(domain.VariantSep24Deposit, domain.StatusPendingStellar)
	f.store.Put(tr)
	f.pending = tr
	require.NoError(t, f.recon.Create(context.Background(), &domain.PendingReconciliation{
		TransferID: tr.ID,
		Condition:  domain.ReconcileCustodyPayment,
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}))
}

func newCustodyFixture(t *testing.T) *jobFixture {
	t.Helper()
	f := &jobFixture{store: testutil.NewTransferStore(), recon: testutil.NewReconciliationStore(), clock: t0}
	f.svc = transfer.NewService(transfer.Deps{
		Store:   f.store,
		Machine: statemachine.New(),
		Index:   index.NewMemory(),
		Now:     func() time.Time { return f.clock },
	})
	pendingStellar(t, f)
	return f
}

func TestCustodyTimeoutJob_ReinjectsProviderOutcome(t *testing.T) {
	f := newCustodyFixture(t)
	sink := &recordingSink{}
	event := &domain.CustodyEvent{CustodyTransactionID: "fb-1", CustodyStatus: domain.CustodyStatusCompleted}
	job := NewCustodyTimeoutJob(f.recon,
		fakeCorrelation{ct: &domain.CustodyTransaction{TransferID: f.pending.ID, ExternalTxID: "fb-1"}},
		fakeCustodyClient{event: event}, sink, f.svc,
		CustodyTimeoutConfig{Interval: time.Minute, Timeout: time.Hour, TimeoutMessage: "custody timeout"},
	)
	job.now = func() time.Time { return t0.Add(2 * time.Hour) }

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.StatusPendingStellar, f.status(t).Status, "the processor applies the outcome, not the job")
	_, ok := f.recon.Get(f.pending.ID, domain.ReconcileCustodyPayment)
	assert.True(t, ok)
}

func TestCustodyTimeoutJob_TimesOut(t *testing.T) {
	f := newCustodyFixture(t)
	job := NewCustodyTimeoutJob(f.recon, nil, nil, nil, f.svc,
		CustodyTimeoutConfig{Interval: time.Minute, Timeout: time.Hour, TimeoutMessage: "custody timeout"},
	)

	job.now = func() time.Time { return t0.Add(59 * time.Minute) }
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, domain.StatusPendingStellar, f.status(t).Status)

	job.now = func() time.Time { return t0.Add(61 * time.Minute) }
	require.NoError(t, job.Run(context.Background()))
	got := f.status(t)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, "custody timeout", got.Message)
	_, ok := f.recon.Get(f.pending.ID, domain.ReconcileCustodyPayment)
	assert.False(t, ok)
}

func TestCustodyTimeoutJob_TransferMovedOn(t *testing.T) {
	f := newCustodyFixture(t)
	done := f.status(t)
	done.Status = domain.StatusCompleted
	f.store.Put(done)

	job := NewCustodyTimeoutJob(f.recon, nil, nil, nil, f.svc, CustodyTimeoutConfig{Timeout: time.Hour})
	require.NoError(t, job.Run(context.Background()))

	_, ok := f.recon.Get(f.pending.ID, domain.ReconcileCustodyPayment)
	assert.False(t, ok)
	assert.Equal(t, domain.StatusCompleted, f.status(t).Status)
}

type countingJob struct{ runs atomic.Int32 }

func (j *countingJob) Name() string { return "counting" }
func (j *countingJob) Interval() time.Duration { return 5 * time.Millisecond }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return nil
}

type cleaner struct{ calls atomic.Int32 }

func (c *cleaner) CleanExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 3, nil
}

func TestRunner_RunsEveryJobUntilCancelled(t *testing.T) {
	job := &countingJob{}
	c := &cleaner{}
	r := NewRunner(slog.Default(), job, NewIdempotencyCleanupJob(c, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 && c.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

// Package observer streams ledger payments for every account the
// active-transfer index is watching and hands each new payment to listeners.
package observer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/index"
	"github.com/josh-kwaku/anchor-gateway/internal/ledger"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
)

type LedgerClient interface {
	FetchOperationsAfter(ctx context.Context, account, cursor string, limit int) (ledger.Page, error)
	LatestCursor(ctx context.Context) (string, error)
}

type CursorStore interface {
	Load(ctx context.Context, account string) (string, error)
	Save(ctx context.Context, account, cursor string) error
}

type PaymentLog interface {
	Seen(ctx context.Context, id string) (bool, error)
	Record(ctx context.Context, p domain.ObservedPayment) error
}

// Listener receives each newly observed payment. Returning an error makes the
// observer retry delivery to that listener, and once retries run out the
// payment is left unrecorded and offered again on the next fetch. Listeners
// must therefore tolerate seeing the same payment twice.
type Listener interface {
	OnPayment(ctx context.Context, p domain.ObservedPayment) error
}

type Config struct {
	SyncInterval    time.Duration
	PageTimeout     time.Duration
	PollInterval    time.Duration
	PageLimit       int
	ListenerRetries int
	// ListenerBackoff is the first delay between listener retries.
	ListenerBackoff time.Duration
	// MaxBackoff caps the delay between failed fetches.
	MaxBackoff time.Duration
}

func (c *Config) setDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = 10 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PageLimit <= 0 {
		c.PageLimit = ledger.DefaultPageLimit
	}
	if c.ListenerRetries < 0 {
		c.ListenerRetries = 0
	}
	if c.ListenerBackoff <= 0 {
		c.ListenerBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
}

// StreamStatus describes one account stream for the readiness endpoint.
type StreamStatus struct {
	Account      string    `json:"account"`
	Cursor       string    `json:"cursor"`
	LastActivity time.Time `json:"last_activity"`
	LastError    string    `json:"last_error,omitempty"`
}

type stream struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status StreamStatus
}

func (s *stream) update(fn func(st *StreamStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

type Observer struct {
	client    LedgerClient
	cursors   CursorStore
	payments  PaymentLog
	index     index.Index
	listeners []Listener
	cfg       Config

	mu      sync.Mutex
	streams map[string]*stream
}

func New(client LedgerClient, cursors CursorStore, payments PaymentLog, idx index.Index, cfg Config, listeners ...Listener) *Observer {
	cfg.setDefaults()
	return &Observer{
		client:    client,
		cursors:   cursors,
		payments:  payments,
		index:     idx,
		listeners: listeners,
		cfg:       cfg,
		streams:   make(map[string]*stream),
	}
}

// Run keeps one stream per watched account until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) error {
	log := logging.FromContext(ctx).With("component", "ledger_observer")
	log.Info("ledger observer started", "sync_interval", o.cfg.SyncInterval.String())

	ticker := time.NewTicker(o.cfg.SyncInterval)
	defer ticker.Stop()

	o.syncStreams(ctx)
	for {
		select {
		case <-ctx.Done():
			o.stopAll()
			log.Info("ledger observer stopped")
			return nil
		case <-ticker.C:
			o.syncStreams(ctx)
		}
	}
}

func (o *Observer) syncStreams(ctx context.Context) {
	log := logging.FromContext(ctx)

	accounts, err := o.index.Accounts(ctx)
	if err != nil {
		log.Error("failed to list watched accounts", "error", err)
		return
	}

	want := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		want[a] = struct{}{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for account, s := range o.streams {
		if _, ok := want[account]; !ok {
			s.cancel()
			<-s.done
			delete(o.streams, account)
			log.Info("stopped ledger stream", "account", account)
		}
	}
	for account := range want {
		if _, ok := o.streams[account]; ok {
			continue
		}
		sctx, cancel := context.WithCancel(ctx)
		s := &stream{cancel: cancel, done: make(chan struct{}), status: StreamStatus{Account: account}}
		o.streams[account] = s
		go func() {
			defer close(s.done)
			o.watch(sctx, account, s)
		}()
		log.Info("started ledger stream", "account", account)
	}
}

func (o *Observer) stopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for account, s := range o.streams {
		s.cancel()
		<-s.done
		delete(o.streams, account)
	}
}

// Status lists the running streams ordered by account.
func (o *Observer) Status() []StreamStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]StreamStatus, 0, len(o.streams))
	for _, s := range o.streams {
		s.mu.Lock()
		out = append(out, s.status)
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// watch polls one account forever. Fetch and store failures back off
// exponentially and never end the stream.
func (o *Observer) watch(ctx context.Context, account string, s *stream) {
	log := logging.FromContext(ctx).With("account", account)
	ctx = logging.WithLogger(ctx, log)

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = o.cfg.MaxBackoff
	b.InitialInterval = min(b.InitialInterval, o.cfg.MaxBackoff)
	b.MaxElapsedTime = 0

	cursor := ""
	loaded := false
	for {
		var fetched int
		err := backoff.RetryNotify(func() error {
			if !loaded {
				c, err := o.startCursor(ctx, account)
				if err != nil {
					return err
				}
				cursor, loaded = c, true
			}
			n, next, err := o.poll(ctx, account, cursor)
			if err != nil {
				return err
			}
			fetched, cursor = n, next
			return nil
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			s.update(func(st *StreamStatus) { st.LastError = err.Error() })
			log.Warn("ledger stream failed, backing off", "error", err, "retry_in", wait.String())
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// only reachable if the backoff gives up, which it does not with MaxElapsedTime 0
			log.Error("ledger stream stopped retrying", "error", err)
			return
		}

		s.update(func(st *StreamStatus) {
			st.Cursor = cursor
			st.LastActivity = time.Now().UTC()
			st.LastError = ""
		})

		if fetched == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.PollInterval):
			}
		}
	}
}

func (o *Observer) startCursor(ctx context.Context, account string) (string, error) {
	cursor, err := o.cursors.Load(ctx, account)
	if err != nil {
		return "", fmt.Errorf("startCursor: %w", err)
	}
	if cursor != "" {
		return cursor, nil
	}

	cursor, err = o.client.LatestCursor(ctx)
	if err != nil {
		return "", fmt.Errorf("startCursor: %w", err)
	}
	if cursor != "" {
		if err := o.cursors.Save(ctx, account, cursor); err != nil {
			return "", fmt.Errorf("startCursor: %w", err)
		}
	}
	logging.FromContext(ctx).Info("no stored cursor, starting from network head", "cursor", cursor)
	return cursor, nil
}

// poll fetches one page after cursor, offers every new payment to the
// listeners and then persists the page's cursor.
func (o *Observer) poll(ctx context.Context, account, cursor string) (int, string, error) {
	log := logging.FromContext(ctx)

	pageCtx, cancel := context.WithTimeout(ctx, o.cfg.PageTimeout)
	page, err := o.client.FetchOperationsAfter(pageCtx, account, cursor, o.cfg.PageLimit)
	cancel()
	if err != nil {
		return 0, cursor, fmt.Errorf("poll: %w", err)
	}

	for _, op := range page.Operations {
		p, ok := ledger.Classify(op)
		if !ok {
			continue
		}
		seen, err := o.payments.Seen(ctx, p.ID)
		if err != nil {
			return 0, cursor, fmt.Errorf("poll: %w", err)
		}
		if seen {
			log.Debug("payment already observed, skipping", "operation_id", p.ID)
			continue
		}

		if err := o.dispatch(ctx, p); err != nil {
			return 0, cursor, fmt.Errorf("poll: %w", err)
		}

		if err := o.payments.Record(ctx, p); err != nil {
			return 0, cursor, fmt.Errorf("poll: %w", err)
		}
	}

	if page.Next != "" && page.Next != cursor {
		if err := o.cursors.Save(ctx, account, page.Next); err != nil {
			return 0, cursor, fmt.Errorf("poll: %w", err)
		}
		cursor = page.Next
	}
	return len(page.Operations), cursor, nil
}

// dispatch offers the payment to every listener. A listener that keeps
// failing does not stop the others, but the payment is reported as
// undelivered so the page is fetched again.
func (o *Observer) dispatch(ctx context.Context, p domain.ObservedPayment) error {
	log := logging.FromContext(ctx).With("operation_id", p.ID, "tx_hash", p.TransactionHash)

	var errs []error
	for _, l := range o.listeners {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = o.cfg.ListenerBackoff
		retry := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.ListenerRetries)), ctx)

		err := backoff.Retry(func() error {
			return l.OnPayment(ctx, p)
		}, retry)
		if err != nil {
			log.Error("payment listener failed, payment will be redelivered",
				"listener", fmt.Sprintf("%T", l),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("dispatch %s to %T: %w", p.ID, l, err))
		}
	}
	return errors.Join(errs...)
}

package ledger

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
)

const (
	DefaultPageLimit = 200
	appName          = "anchor-gateway"
	joinTransactions = "transactions"
)

type Client struct {
	horizon *horizonclient.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &horizonclient.Client{
		HorizonURL: baseURL,
		HTTP:       &http.Client{Timeout: timeout},
		AppName:    appName,
	}
	hc.SetHorizonTimeout(timeout)
	return &Client{horizon: hc}
}

// FetchOperationsAfter returns payment operations touching account, strictly
// after cursor, oldest first.
func (c *Client) FetchOperationsAfter(ctx context.Context, account, cursor string, limit int) (Page, error) {
	if !ValidAccount(account) {
		return Page{}, fmt.Errorf("FetchOperationsAfter: account %q: %w", account, domain.ErrInvalidParams)
	}
	if limit <= 0 || limit > DefaultPageLimit {
		limit = DefaultPageLimit
	}
	req := horizonclient.OperationRequest{
		ForAccount: account,
		Cursor:     cursor,
		Order:      horizonclient.OrderAsc,
		Limit:      uint(limit),
		Join:       joinTransactions,
	}

	resp, err := call(ctx, "account payments", func() (operations.OperationsPage, error) {
		return c.horizon.Payments(req)
	})
	if err != nil {
		return Page{}, fmt.Errorf("FetchOperationsAfter: %w", err)
	}

	page := Page{Operations: resp.Embedded.Records, Next: cursor}
	if n := len(page.Operations); n > 0 {
		page.Next = page.Operations[n-1].PagingToken()
	}
	return page, nil
}

// LatestCursor is the paging token of the most recent payment on the network,
// used to start a stream that has no stored cursor.
func (c *Client) LatestCursor(ctx context.Context) (string, error) {
	req := horizonclient.OperationRequest{Order: horizonclient.OrderDesc, Limit: 1}

	resp, err := call(ctx, "latest payment", func() (operations.OperationsPage, error) {
		return c.horizon.Payments(req)
	})
	if err != nil {
		return "", fmt.Errorf("LatestCursor: %w", err)
	}
	if len(resp.Embedded.Records) == 0 {
		return "", nil
	}
	return resp.Embedded.Records[0].PagingToken(), nil
}

// TransactionOperations returns the payment operations of one transaction.
func (c *Client) TransactionOperations(ctx context.Context, hash string) ([]operations.Operation, error) {
	req := horizonclient.OperationRequest{ForTransaction: hash, Limit: DefaultPageLimit, Join: joinTransactions}

	resp, err := call(ctx, "transaction payments", func() (operations.OperationsPage, error) {
		return c.horizon.Payments(req)
	})
	if err != nil {
		return nil, fmt.Errorf("TransactionOperations: %w", err)
	}
	return resp.Embedded.Records, nil
}

// HasTrustline reports whether account can hold asset. Every existing account
// holds the native asset.
func (c *Client) HasTrustline(ctx context.Context, account, asset string) (bool, error) {
	code, issuer, ok := ParseAssetID(asset)
	if !ok {
		return false, fmt.Errorf("HasTrustline: asset %q: %w", asset, domain.ErrInvalidParams)
	}
	if !ValidAccount(account) {
		return false, fmt.Errorf("HasTrustline: account %q: %w", account, domain.ErrInvalidParams)
	}

	acct, err := call(ctx, "account detail", func() (hProtocol.Account, error) {
		return c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: account})
	})
	if err != nil {
		return false, fmt.Errorf("HasTrustline: %w", err)
	}
	if code == nativeAssetType {
		return true, nil
	}
	for _, b := range acct.Balances {
		if b.Code == code && b.Issuer == issuer {
			return true, nil
		}
	}
	return false, nil
}

// call runs a Horizon request and gives up when ctx ends. The request itself
// is bounded by the client timeout.
func call[T any](ctx context.Context, name string, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%s: %w", name, ctx.Err())
	case r := <-done:
		logging.FromContext(ctx).Debug("ledger response received",
			"request", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"ok", r.err == nil,
		)
		if r.err != nil {
			return zero, fmt.Errorf("%s: %w", name, upstreamError(r.err))
		}
		return r.value, nil
	}
}

func upstreamError(err error) error {
	herr := horizonclient.GetError(err)
	if herr == nil {
		return fmt.Errorf("%v: %w", err, domain.ErrUpstream)
	}

	status := herr.Problem.Status
	if herr.Response != nil {
		status = herr.Response.StatusCode
	}
	if status == http.StatusNotFound || horizonclient.IsNotFoundError(err) {
		return fmt.Errorf("%s: %w", herr.Problem.Title, domain.ErrNotFound)
	}
	return fmt.Errorf("status %d %s: %w", status, herr.Problem.Title, domain.ErrUpstream)
}

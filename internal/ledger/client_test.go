package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const (
	account = "GCNPEEJSTMX4QLS672IGAYWHGAECQGNSH7UDSS6EGXQLDPYELDVVJB2X"
	user    = "GACPRGLNU5R3PKLJWEBI5YYAOVU6V45GGVEG3WVSCHKRFSC3TX4PXOOL"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second)
}

func writeProblem(w http.ResponseWriter, status int, kind, title string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	w.Write([]byte(`{"type":"https://stellar.org/horizon-errors/` + kind + `","title":"` + title + `","status":` + strconv.Itoa(status) + `}`))
}

func TestFetchOperationsAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/"+account+"/payments", r.URL.Path)
		assert.Equal(t, "asc", r.URL.Query().Get("order"))
		assert.Equal(t, "transactions", r.URL.Query().Get("join"))

		if r.URL.Query().Get("cursor") == "200" {
			w.Write([]byte(`{"_embedded":{"records":[]}}`))
			return
		}
		assert.Equal(t, "100", r.URL.Query().Get("cursor"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"_embedded":{"records":[
			{"id":"150","paging_token":"150","type":"payment","type_i":1,"transaction_successful":true,"amount":"1","asset_type":"native","from":"` + user + `","to":"` + account + `"},
			{"id":"200","paging_token":"200","type":"payment","type_i":1,"transaction_successful":true,"amount":"2","asset_type":"native","from":"` + user + `","to":"` + account + `"}
		]}}`))
	})
	ctx := context.Background()

	page, err := c.FetchOperationsAfter(ctx, account, "100", 10)
	require.NoError(t, err)
	require.Len(t, page.Operations, 2)
	assert.Equal(t, "200", page.Next)

	p, ok := Classify(page.Operations[0])
	require.True(t, ok)
	assert.Equal(t, domain.PaymentTypePayment, p.Type)
	assert.Equal(t, account, p.To)

	page, err = c.FetchOperationsAfter(ctx, account, "200", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Operations)
	assert.Equal(t, "200", page.Next, "empty page keeps the cursor")
}

func TestFetchOperationsAfter_RejectsMalformedAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})

	for _, bad := range []string{"", "GACC", account[:len(account)-1] + "A"} {
		_, err := c.FetchOperationsAfter(context.Background(), bad, "", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidParams, bad)
	}
}

func TestLatestCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		w.Write([]byte(`{"_embedded":{"records":[{"id":"999","paging_token":"999","type":"payment","type_i":1}]}}`))
	})

	cursor, err := c.LatestCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "999", cursor)
}

func TestTransactionOperations_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/deadbeef/payments", r.URL.Path)
		writeProblem(w, http.StatusNotFound, "not_found", "Resource Missing")
	})

	_, err := c.TransactionOperations(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_ServerErrorIsUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusServiceUnavailable, "service_unavailable", "Service Unavailable")
	})

	_, err := c.FetchOperationsAfter(context.Background(), account, "", 0)
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestClient_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.LatestCursor(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHasTrustline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/"+user, r.URL.Path)
		w.Write([]byte(`{"id":"` + user + `","account_id":"` + user + `","balances":[
			{"balance":"10.0000000","asset_type":"credit_alphanum4","asset_code":"USDC","asset_issuer":"` + issuer + `"},
			{"balance":"5.0000000","asset_type":"native"}
		]}`))
	})
	ctx := context.Background()

	ok, err := c.HasTrustline(ctx, user, "stellar:USDC:"+issuer)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasTrustline(ctx, user, "stellar:EURC:"+issuer)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.HasTrustline(ctx, user, "stellar:native")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.HasTrustline(ctx, user, "iso4217:USD")
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = c.HasTrustline(ctx, "", "stellar:native")
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestHasTrustline_UnfundedAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "not_found", "Resource Missing")
	})

	_, err := c.HasTrustline(context.Background(), user, "stellar:USDC:"+issuer)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

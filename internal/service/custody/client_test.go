package custody

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

func privatePEM(t *testing.T, k keyPair) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(k.private)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestClient_TransactionStatus(t *testing.T) {
	keys := newKeyPair(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/fb-1", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("X-API-Key"))

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &bodyHashClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return &keys.private.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		assert.NoError(t, err)
		assert.Equal(t, "/v1/transactions/fb-1", claims.URI)
		assert.Equal(t, "api-key", claims.Subject)

		w.Write([]byte(`{"id":"fb-1","status":"COMPLETED","txHash":"h1","destinationAddress":"GANCHOR","destinationTag":"7","amount":"3.25","lastUpdated":1767261600000}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "api-key", privatePEM(t, keys))
	require.NoError(t, err)

	e, err := c.TransactionStatus(context.Background(), "fb-1")
	require.NoError(t, err)
	assert.Equal(t, "fb-1", e.CustodyTransactionID)
	assert.Equal(t, domain.CustodyStatusCompleted, e.CustodyStatus)
	assert.Equal(t, "3.25", e.Amount.Decimal.String())
	assert.Equal(t, int64(1767261600000), e.OccurredAt.UnixMilli())
	assert.Equal(t, domain.CustodyEventStatusPending, e.Status)
}

func TestClient_TransactionStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", "")
	require.NoError(t, err)

	_, err = c.TransactionStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

package custody

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
)

const tokenLifetime = 30 * time.Second

// Client reads transaction state from the custody provider's API. Requests
// are signed with a short-lived RS256 token when a secret key is configured.
type Client struct {
	baseURL    string
	apiKey     string
	secret     *rsa.PrivateKey
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, secretPEM string) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if secretPEM != "" {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(strings.ReplaceAll(secretPEM, `\n`, "\n")))
		if err != nil {
			return nil, fmt.Errorf("NewClient: %w", err)
		}
		c.secret = key
	}
	return c, nil
}

type bodyHashClaims struct {
	URI      string `json:"uri"`
	Nonce    string `json:"nonce"`
	BodyHash string `json:"bodyHash"`
	jwt.RegisteredClaims
}

func (c *Client) token(path string, body []byte) (string, error) {
	now := time.Now()
	sum := sha256.Sum256(body)
	claims := bodyHashClaims{
		URI:      path,
		Nonce:    uuid.NewString(),
		BodyHash: hex.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.secret)
}

// TransactionStatus fetches the provider's current view of one transaction
// as an event ready to be stored.
func (c *Client) TransactionStatus(ctx context.Context, externalTxID string) (*domain.CustodyEvent, error) {
	log := logging.FromContext(ctx)
	path := "/v1/transactions/" + externalTxID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("TransactionStatus: build request: %w", err)
	}
	if c.secret != nil {
		tok, err := c.token(path, nil)
		if err != nil {
			return nil, fmt.Errorf("TransactionStatus: sign: %w", err)
		}
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TransactionStatus: send: %v: %w", err, domain.ErrUpstream)
	}
	defer resp.Body.Close()

	log.Info("custody response received",
		"custody_tx_id", externalTxID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("TransactionStatus: %s: %w", externalTxID, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("TransactionStatus: unexpected status %d: %s: %w", resp.StatusCode, string(respBody), domain.ErrUpstream)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("TransactionStatus: read: %w", err)
	}
	var data transactionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("TransactionStatus: decode: %w", err)
	}

	now := time.Now().UTC()
	return data.toEvent(raw, millis(data.LastUpdated, now), now), nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/anchor-gateway/internal/logging"
)

type HTTPCallback struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewHTTPCallback(url, token string, timeout time.Duration) *HTTPCallback {
	return &HTTPCallback{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPCallback) Notify(ctx context.Context, event Event) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("HTTPCallback.Notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPCallback.Notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPCallback.Notify: send: %w", err)
	}
	defer resp.Body.Close()

	log.Debug("callback delivered",
		"event_id", event.ID,
		"transfer_id", event.Transfer.ID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTPCallback.Notify: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

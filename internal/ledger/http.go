package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the ledger gateway, the service that fronts the on-chain
// points program. The chain itself (signing, accounts, finality) stays behind
// the gateway; this client only sees balances, prediction state, and
// confirmation references.
type Client struct {
	host            string
	httpClient      *http.Client
	confirmInterval time.Duration
	confirmTimeout  time.Duration
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string, confirmInterval, confirmTimeout time.Duration) *Client {
	host = strings.TrimRight(host, "/")
	if confirmInterval <= 0 {
		confirmInterval = 2 * time.Second
	}
	if confirmTimeout <= 0 {
		confirmTimeout = time.Minute
	}
	return &Client{
		host:            host,
		httpClient:      httpClient,
		confirmInterval: confirmInterval,
		confirmTimeout:  confirmTimeout,
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *Client) ReadBalance(ctx context.Context, wallet string) (uint64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/accounts/"+url.PathEscape(wallet), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	var out struct {
		Points uint64 `json:"points"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("failed to decode balance: %w", err)
	}
	return out.Points, nil
}

func (c *Client) SubmitBalanceUpdate(ctx context.Context, wallet string, newTotal uint64) (string, error) {
	payload := map[string]any{"total": newTotal}
	body, err := c.doRequest(ctx, http.MethodPost, "/accounts/"+url.PathEscape(wallet)+"/balance", payload)
	if err != nil {
		return "", err
	}
	var out struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode submission response: %w", err)
	}
	if strings.TrimSpace(out.Ref) == "" {
		return "", fmt.Errorf("ledger returned empty confirmation ref")
	}
	return out.Ref, nil
}

// AwaitConfirmation polls the gateway until the submitted update reaches
// finality. A timeout is a failure: the caller must never guess success.
func (c *Client) AwaitConfirmation(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	t := time.NewTicker(c.confirmInterval)
	defer t.Stop()
	for {
		body, err := c.doRequest(ctx, http.MethodGet, "/transactions/"+url.PathEscape(ref), nil)
		if err == nil {
			var out struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("failed to decode confirmation: %w", err)
			}
			switch strings.ToLower(out.Status) {
			case "confirmed", "finalized":
				return nil
			case "failed", "rejected":
				return fmt.Errorf("ledger rejected update %s", ref)
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation of %s timed out: %w", ref, ctx.Err())
		case <-t.C:
		}
	}
}

func (c *Client) FetchAllUserPredictions(ctx context.Context) ([]UserPredictionState, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/predictions", nil)
	if err != nil {
		return nil, err
	}
	var out []UserPredictionState
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode prediction state: %w", err)
	}
	return out, nil
}

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type Client struct {
	host       string
	httpClient *http.Client
	currency   string
	pageSize   int
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host, currency string, pageSize int) *Client {
	if host == "" {
		host = "https://api.coingecko.com/api/v3"
	}
	host = strings.TrimRight(host, "/")
	if currency == "" {
		currency = "usd"
	}
	if pageSize <= 0 || pageSize > 250 {
		pageSize = 100
	}
	return &Client{
		host:       host,
		httpClient: httpClient,
		currency:   currency,
		pageSize:   pageSize,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// FetchMarketSnapshot returns the current market page ordered by market cap,
// one call per round.
func (c *Client) FetchMarketSnapshot(ctx context.Context) ([]Coin, error) {
	query := url.Values{}
	query.Set("vs_currency", c.currency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(c.pageSize))
	query.Set("page", "1")
	body, err := c.doRequest(ctx, "/coins/markets", query)
	if err != nil {
		return nil, err
	}
	var coins []Coin
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, fmt.Errorf("failed to decode market snapshot: %w", err)
	}
	return coins, nil
}

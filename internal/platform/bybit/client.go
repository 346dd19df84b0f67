// Package bybit is a minimal client for the Bybit v5 market data and order
// endpoints.
package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mkoval/tradepilot/internal/crypto"
	"github.com/mkoval/tradepilot/internal/domain"
)

// Client is the REST client for the Bybit v5 API.
type Client struct {
	baseURL    string
	category   string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a new Bybit REST client.
//
// baseURL is the API root, e.g. "https://api.bybit.com".
// category selects the product line, e.g. "linear" for USDT perpetuals.
func NewClient(baseURL, category string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		category: category,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetAuth configures HMAC credentials for private endpoints. Market data
// endpoints work without it.
func (c *Client) SetAuth(auth crypto.HMACAuth) {
	c.auth = &auth
}

// GetTicker returns the market snapshot for one symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*domain.MarketData, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)

	body, err := c.doGet(ctx, "/v5/market/tickers", params)
	if err != nil {
		return nil, fmt.Errorf("bybit: get ticker %s: %w", symbol, err)
	}

	var resp tickersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode tickers: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit: get ticker %s: retCode %d: %s: %w",
			symbol, resp.RetCode, resp.RetMsg, domain.ErrMarketUnavailable)
	}
	if len(resp.Result.List) == 0 {
		return nil, fmt.Errorf("bybit: no ticker for %s: %w", symbol, domain.ErrMarketUnavailable)
	}

	md := tickerToMarketData(resp.Result.List[0], time.UnixMilli(resp.Time))
	return &md, nil
}

// GetTickers returns snapshots for every symbol in the configured category.
func (c *Client) GetTickers(ctx context.Context) ([]domain.MarketData, error) {
	params := url.Values{}
	params.Set("category", c.category)

	body, err := c.doGet(ctx, "/v5/market/tickers", params)
	if err != nil {
		return nil, fmt.Errorf("bybit: get tickers: %w", err)
	}

	var resp tickersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode tickers: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit: get tickers: retCode %d: %s: %w",
			resp.RetCode, resp.RetMsg, domain.ErrMarketUnavailable)
	}

	ts := time.UnixMilli(resp.Time)
	out := make([]domain.MarketData, 0, len(resp.Result.List))
	for _, t := range resp.Result.List {
		out = append(out, tickerToMarketData(t, ts))
	}
	return out, nil
}

// PlaceOrder submits a signed market or limit order. Requires SetAuth.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("bybit: place order: no API credentials configured")
	}
	if req.Category == "" {
		req.Category = c.category
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bybit: marshal order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v5/order/create", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("bybit: build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.auth.Headers(string(payload)) {
		httpReq.Header.Set(k, v)
	}

	body, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bybit: place order %s: %w", req.Symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode order response: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit: place order %s: retCode %d: %s",
			req.Symbol, resp.RetCode, resp.RetMsg)
	}
	return &resp.Result, nil
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMarketUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(body), domain.ErrMarketUnavailable)
	}
	return body, nil
}

func tickerToMarketData(t tickerEntry, ts time.Time) domain.MarketData {
	md := domain.MarketData{
		Symbol:    t.Symbol,
		Timestamp: ts,
	}
	md.Price = parseF(t.LastPrice)
	md.Change24hPct = parseF(t.Price24hPcnt) * 100
	md.High24h = parseF(t.HighPrice24h)
	md.Low24h = parseF(t.LowPrice24h)
	md.Volume24h = parseF(t.Volume24h)
	md.Turnover24h = parseF(t.Turnover24h)
	md.FundingRate = parseF(t.FundingRate)
	md.OpenInterest = parseF(t.OpenInterest)
	return md
}

func parseF(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

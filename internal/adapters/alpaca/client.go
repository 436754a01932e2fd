// Package alpaca adapts the Alpaca Market Data REST and websocket APIs to the
// application's feed ports.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/ratelimit"
)

const (
	defaultDataBaseURL = "https://data.alpaca.markets"
	defaultAPIBaseURL  = "https://api.alpaca.markets"

	headerKeyID     = "APCA-API-KEY-ID"
	headerSecretKey = "APCA-API-SECRET-KEY"

	// hard cap per the provider's documented maximum page size
	pageLimit = 10000

	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// Feed fallback orders. The paid consolidated feed is tried first; when the
// subscription does not cover it the provider rejects the request and the
// next feed is attempted.
var (
	latestFeeds     = []string{"sip", "iex", "delayed_sip"}
	historicalFeeds = []string{"sip", "iex"}
)

// Client implements ports.MarketFeed against the Alpaca Market Data REST API.
type Client struct {
	httpClient  *http.Client
	limiter     *ratelimit.Limiter
	logger      ports.Logger
	dataBaseURL string
	apiBaseURL  string
	apiKey      string
	secretKey   string
	maxAttempts int
	retryDelay  time.Duration
}

// Config holds configuration specific to the Alpaca REST adapter.
type Config struct {
	APIKey      string
	SecretKey   string
	DataBaseURL string // overridable for tests
	APIBaseURL  string
	Limiter     *ratelimit.Limiter
	Logger      ports.Logger
	HTTPClient  *http.Client
	MaxAttempts int           // attempts per request before giving up
	RetryDelay  time.Duration // base delay, scaled linearly per attempt
}

// NewClient creates a new Alpaca REST adapter.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Upstream requests will be rejected.")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(200, time.Minute)
	}
	dataBase := cfg.DataBaseURL
	if dataBase == "" {
		dataBase = defaultDataBaseURL
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Client{
		httpClient:  httpClient,
		limiter:     limiter,
		logger:      cfg.Logger,
		dataBaseURL: strings.TrimRight(dataBase, "/"),
		apiBaseURL:  strings.TrimRight(apiBase, "/"),
		apiKey:      cfg.APIKey,
		secretKey:   cfg.SecretKey,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}, nil
}

// wire shapes

type barJSON struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

type latestBarResponse struct {
	Symbol string   `json:"symbol"`
	Bar    *barJSON `json:"bar"`
}

type barsResponse struct {
	Symbol        string    `json:"symbol"`
	Bars          []barJSON `json:"bars"`
	NextPageToken *string   `json:"next_page_token"`
}

type clockResponse struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

func (b barJSON) toPricePoint(symbol string) domain.PricePoint {
	return domain.PricePoint{
		Symbol:  symbol,
		Instant: b.Timestamp.UTC(),
		Open:    decimal.NewFromFloat(b.Open),
		High:    decimal.NewFromFloat(b.High),
		Low:     decimal.NewFromFloat(b.Low),
		Close:   decimal.NewFromFloat(b.Close),
		Volume:  b.Volume,
	}
}

// LatestBar fetches the most recent bar for a symbol, trying each feed in
// order until one returns a usable bar.
func (c *Client) LatestBar(ctx context.Context, symbol string) (domain.PricePoint, error) {
	op := "LatestBar"
	var lastErr error
	for _, feed := range latestFeeds {
		endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars/latest", c.dataBaseURL, url.PathEscape(symbol))
		params := url.Values{"feed": {feed}}

		body, err := c.doRequest(ctx, endpoint, params, op)
		if err != nil {
			lastErr = err
			c.logger.Warn(ctx, "latest bar fetch failed on feed, falling through", map[string]interface{}{
				"symbol": symbol, "feed": feed, "error": err.Error(),
			})
			continue
		}

		var resp latestBarResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			lastErr = fmt.Errorf("%s failed: %w: %w", op, ports.ErrMalformedResponse, err)
			continue
		}
		if resp.Bar == nil {
			lastErr = fmt.Errorf("%s failed: %w: empty bar for %s on feed %s", op, ports.ErrMalformedResponse, symbol, feed)
			continue
		}
		return resp.Bar.toPricePoint(symbol), nil
	}
	return domain.PricePoint{}, fmt.Errorf("%s failed: %w: all feeds exhausted for %s: %w", op, ports.ErrExternalService, symbol, lastErr)
}

// HistoricalBars fetches bars of the given resolution over [start, end],
// following pagination until the window is exhausted. Feeds are tried in
// order; the first feed that yields any bars wins.
func (c *Client) HistoricalBars(ctx context.Context, symbol, barSize string, start, end time.Time) ([]domain.PricePoint, error) {
	op := "HistoricalBars"
	// format once so every page of a paginated fetch carries byte-identical
	// window parameters
	startStr := start.UTC().Format(time.RFC3339)
	endStr := end.UTC().Format(time.RFC3339)

	var lastErr error
	for _, feed := range historicalFeeds {
		points, err := c.fetchAllPages(ctx, symbol, barSize, startStr, endStr, feed, op)
		if err != nil {
			lastErr = err
			c.logger.Warn(ctx, "historical fetch failed on feed, falling through", map[string]interface{}{
				"symbol": symbol, "feed": feed, "error": err.Error(),
			})
			continue
		}
		if len(points) == 0 {
			lastErr = fmt.Errorf("%s failed: %w: no bars for %s on feed %s", op, ports.ErrMalformedResponse, symbol, feed)
			continue
		}
		return points, nil
	}
	return nil, fmt.Errorf("%s failed: %w: all feeds exhausted for %s: %w", op, ports.ErrExternalService, symbol, lastErr)
}

func (c *Client) fetchAllPages(ctx context.Context, symbol, barSize, startStr, endStr, feed, op string) ([]domain.PricePoint, error) {
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars", c.dataBaseURL, url.PathEscape(symbol))

	var points []domain.PricePoint
	pageToken := ""
	for {
		params := url.Values{
			"timeframe":  {barSize},
			"start":      {startStr},
			"end":        {endStr},
			"limit":      {fmt.Sprintf("%d", pageLimit)},
			"adjustment": {"all"},
			"feed":       {feed},
			"sort":       {"asc"},
		}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		body, err := c.doRequest(ctx, endpoint, params, op)
		if err != nil {
			return nil, err
		}

		var resp barsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrMalformedResponse, err)
		}
		for _, b := range resp.Bars {
			points = append(points, b.toPricePoint(symbol))
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		// a provider bug repeating the same token would loop forever
		if *resp.NextPageToken == pageToken {
			c.logger.Warn(ctx, "pagination token repeated, aborting fetch", map[string]interface{}{
				"symbol": symbol, "token": pageToken,
			})
			break
		}
		pageToken = *resp.NextPageToken
	}
	return points, nil
}

// Clock returns the current market session snapshot.
func (c *Client) Clock(ctx context.Context) (ports.MarketClock, error) {
	op := "Clock"
	body, err := c.doRequest(ctx, c.apiBaseURL+"/v2/clock", nil, op)
	if err != nil {
		return ports.MarketClock{}, err
	}
	var resp clockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ports.MarketClock{}, fmt.Errorf("%s failed: %w: %w", op, ports.ErrMalformedResponse, err)
	}
	return ports.MarketClock{IsOpen: resp.IsOpen, NextOpen: resp.NextOpen, NextClose: resp.NextClose}, nil
}

// IsOpen reports whether the regular session is trading right now.
func (c *Client) IsOpen(ctx context.Context) (bool, error) {
	clock, err := c.Clock(ctx)
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

// doRequest performs a rate-limited GET with retry. Retryable conditions are
// transport errors, 5xx, 429, 408, and provider throttle messages smuggled
// inside a 200 body.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, op string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			// linear backoff scaled by how many attempts have failed
			delay := time.Duration(attempt-1) * c.retryDelay
			c.logger.Debug(ctx, "retrying upstream request", map[string]interface{}{
				"operation": op, "attempt": attempt, "delay": delay.String(),
			})
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s operation canceled: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("%s operation canceled: %w: %w", op, ports.ErrContextCanceled, err)
		}

		body, retryable, err := c.doOnce(ctx, endpoint, params, op)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, endpoint string, params url.Values, op string) (body []byte, retryable bool, err error) {
	reqURL := endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
	}
	req.Header.Set(headerKeyID, c.apiKey)
	req.Header.Set(headerSecretKey, c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, false, fmt.Errorf("%s operation canceled: %w: %w", op, ports.ErrContextCanceled, err)
		}
		return nil, true, fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%s failed: %w: %w", op, ports.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if isThrottleBody(body) {
			return nil, true, fmt.Errorf("%s failed: %w: provider throttle message in response body", op, ports.ErrRateLimited)
		}
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%s failed: %w: status %d", op, ports.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode == http.StatusRequestTimeout:
		return nil, true, fmt.Errorf("%s failed: %w: status %d", op, ports.ErrTimeout, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%s failed: %w: status %d: %s", op, ports.ErrUpstream, resp.StatusCode, truncate(body))
	default:
		return nil, false, fmt.Errorf("%s failed: %w: status %d: %s", op, ports.ErrUpstream, resp.StatusCode, truncate(body))
	}
}

// isThrottleBody detects throttle notices some providers return with a 200.
func isThrottleBody(body []byte) bool {
	s := string(body)
	return strings.Contains(s, "rate exceeded") || strings.Contains(s, "API call frequency")
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/ports"
	"paperTrader/internal/ratelimit"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:      "test-key",
		SecretKey:   "test-secret",
		DataBaseURL: srv.URL,
		APIBaseURL:  srv.URL,
		Limiter:     ratelimit.New(1000, time.Minute),
		Logger:      &mockLogger{},
		HTTPClient:  srv.Client(),
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

const barBody = `{"symbol":"AAPL","bar":{"t":"2026-03-02T14:30:00Z","o":100.5,"h":101.2,"l":99.8,"c":100.9,"v":12345}}`

func TestLatestBarFirstFeedWins(t *testing.T) {
	var feeds []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "test-secret", r.Header.Get("APCA-API-SECRET-KEY"))
		feeds = append(feeds, r.URL.Query().Get("feed"))
		fmt.Fprint(w, barBody)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	p, err := client.LatestBar(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, []string{"sip"}, feeds, "the first feed succeeding means no fallback")
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), p.Instant)
	assert.Equal(t, "100.9", p.Close.String())
	assert.Equal(t, int64(12345), p.Volume)
}

func TestLatestBarFallsThroughFeeds(t *testing.T) {
	var feeds []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feed := r.URL.Query().Get("feed")
		feeds = append(feeds, feed)
		if feed != "delayed_sip" {
			// subscription does not cover this feed
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, barBody)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	p, err := client.LatestBar(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"sip", "iex", "delayed_sip"}, feeds)
	assert.Equal(t, "AAPL", p.Symbol)
}

func TestLatestBarAllFeedsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.LatestBar(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrExternalService)
}

func TestLatestBarMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"this is": not json`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.LatestBar(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrExternalService)
	assert.ErrorIs(t, err, ports.ErrMalformedResponse)
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, barBody)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.LatestBar(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "two failures then a success within the allowed attempts")
}

func TestDoRequestRetriesThrottleInOKBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// some providers hide throttling inside a 200
			fmt.Fprint(w, `{"note":"API call frequency is 5 calls per minute"}`)
			return
		}
		fmt.Fprint(w, barBody)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.LatestBar(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoRequestGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.LatestBar(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	// three attempts per feed, three feeds for the latest endpoint
	assert.Equal(t, int32(9), calls.Load())
}

func TestHistoricalBarsPagination(t *testing.T) {
	var starts, ends, tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		starts = append(starts, q.Get("start"))
		ends = append(ends, q.Get("end"))
		tokens = append(tokens, q.Get("page_token"))
		assert.Equal(t, "10000", q.Get("limit"))
		assert.Equal(t, "all", q.Get("adjustment"))
		assert.Equal(t, "asc", q.Get("sort"))

		if q.Get("page_token") == "" {
			fmt.Fprint(w, `{"symbol":"AAPL","bars":[{"t":"2026-03-02T14:30:00Z","o":1,"h":1,"l":1,"c":1,"v":1}],"next_page_token":"tok-1"}`)
			return
		}
		fmt.Fprint(w, `{"symbol":"AAPL","bars":[{"t":"2026-03-02T14:35:00Z","o":2,"h":2,"l":2,"c":2,"v":2}],"next_page_token":null}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	points, err := client.HistoricalBars(context.Background(), "AAPL", "5Min", start, end)
	require.NoError(t, err)
	require.Len(t, points, 2)

	require.Len(t, starts, 2)
	assert.Equal(t, starts[0], starts[1], "window parameters must be byte-identical across pages")
	assert.Equal(t, ends[0], ends[1])
	assert.Equal(t, []string{"", "tok-1"}, tokens)
	assert.True(t, points[1].Instant.After(points[0].Instant))
}

func TestHistoricalBarsRepeatedTokenAborts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// always the same token: a looping provider bug
		fmt.Fprint(w, `{"symbol":"AAPL","bars":[{"t":"2026-03-02T14:30:00Z","o":1,"h":1,"l":1,"c":1,"v":1}],"next_page_token":"stuck"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	points, err := client.HistoricalBars(context.Background(), "AAPL", "5Min", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, points, 2, "first page plus the page that repeated the token")
	assert.Equal(t, int32(2), calls.Load(), "the loop must stop on the first repeated token")
}

func TestHistoricalBarsEmptyFeedsFallThrough(t *testing.T) {
	var feeds []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feed := r.URL.Query().Get("feed")
		feeds = append(feeds, feed)
		if feed == "sip" {
			fmt.Fprint(w, `{"symbol":"AAPL","bars":[],"next_page_token":null}`)
			return
		}
		fmt.Fprint(w, `{"symbol":"AAPL","bars":[{"t":"2026-03-02T14:30:00Z","o":1,"h":1,"l":1,"c":1,"v":1}],"next_page_token":null}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	points, err := client.HistoricalBars(context.Background(), "AAPL", "5Min", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"sip", "iex"}, feeds, "an empty page is a miss, not an answer")
	assert.Len(t, points, 1)
}

func TestClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/clock", r.URL.Path)
		fmt.Fprint(w, `{"is_open":true,"next_open":"2026-03-03T14:30:00Z","next_close":"2026-03-02T21:00:00Z"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	clock, err := client.Clock(context.Background())
	require.NoError(t, err)
	assert.True(t, clock.IsOpen)
	assert.Equal(t, 2026, clock.NextOpen.Year())

	open, err := client.IsOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}

package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-price-sync/internal/config"
	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/models"
)

// 2024-01-02 and 2024-01-03 09:30 New York, as epoch seconds.
const dailyChart = `{
  "chart": {
    "result": [{
      "meta": {"currency": "USD", "symbol": "AAPL", "exchangeTimezoneName": "America/New_York", "gmtoffset": -18000, "timezone": "EST"},
      "timestamp": [1704205800, 1704292200, 1704378600],
      "indicators": {
        "quote": [{
          "open":   [187.149994, 184.220001, null],
          "high":   [188.440002, 185.880005, 183.0],
          "low":    [183.889999, 183.429993, 181.0],
          "close":  [185.639999, 184.250000, 182.0],
          "volume": [82488700, 58414500, 1000]
        }],
        "adjclose": [{"adjclose": [184.9383544921875, 183.5538330078125, 181.5]}]
      }
    }],
    "error": null
  }
}`

const minuteChart = `{
  "chart": {
    "result": [{
      "meta": {"exchangeTimezoneName": "America/New_York"},
      "timestamp": [1709562600, 1709562660],
      "indicators": {
        "quote": [{
          "open":   [175.0, 175.1],
          "high":   [175.5, 175.2],
          "low":    [174.9, 175.0],
          "close":  [175.1, 175.15],
          "volume": [1200, null]
        }]
      }
    }],
    "error": null
  }
}`

const notFoundChart = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *YahooProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewYahooProvider(YahooConfig{
		BaseURL:           server.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
	}, quietLogger())
}

func TestYahooProvider_FetchDaily(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	provider := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(dailyChart))
	})

	rows, err := provider.Fetch(context.Background(), FetchRequest{
		Symbol:   "AAPL",
		Start:    day("2024-01-02"),
		End:      day("2024-01-03"),
		Interval: models.IntervalDaily,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Equal(t, []string{"1d"}, gotQuery["interval"])
	assert.Equal(t, []string{"1704153600"}, gotQuery["period1"])
	assert.Equal(t, []string{"1704326400"}, gotQuery["period2"])
	assert.Equal(t, []string{"true"}, gotQuery["includeAdjustedClose"])

	require.Len(t, rows, 2, "row with a null open is skipped")
	assert.Equal(t, day("2024-01-02"), rows[0].Timestamp)
	assert.Equal(t, day("2024-01-03"), rows[1].Timestamp)
	assert.True(t, decimal.RequireFromString("187.15").Equal(rows[0].Open))
	assert.True(t, decimal.RequireFromString("185.64").Equal(rows[0].Close))
	assert.Equal(t, int64(82488700), rows[0].Volume)
	require.True(t, rows[0].AdjClose.Valid)
	assert.True(t, decimal.RequireFromString("184.938354").Equal(rows[0].AdjClose.Decimal))
}

func TestYahooProvider_FetchMinuteKeepsWallClock(t *testing.T) {
	provider := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(minuteChart))
	})

	rows, err := provider.Fetch(context.Background(), FetchRequest{
		Symbol:   "AAPL",
		Start:    day("2024-03-04"),
		End:      day("2024-03-04"),
		Interval: models.IntervalMinute,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC), rows[0].Timestamp)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 31, 0, 0, time.UTC), rows[1].Timestamp)
	assert.Equal(t, int64(0), rows[1].Volume)
	assert.False(t, rows[0].AdjClose.Valid)
}

func TestYahooProvider_NotFoundIsEmpty(t *testing.T) {
	provider := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(notFoundChart))
	})

	rows, err := provider.Fetch(context.Background(), FetchRequest{Symbol: "ZZZZ", Start: day("2024-01-02"), End: day("2024-01-03")})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestYahooProvider_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		contains  string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true, contains: "rate limit"},
		{name: "server error", status: http.StatusBadGateway, transient: true, contains: "server error 502"},
		{name: "client error", status: http.StatusBadRequest, transient: false, contains: "client error 400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Other","description":"x"}}}`))
			})

			_, err := provider.Fetch(context.Background(), FetchRequest{Symbol: "AAPL", Start: day("2024-01-02"), End: day("2024-01-03")})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.transient, errs.IsTransient(err))
		})
	}
}

func TestYahooProvider_MalformedBody(t *testing.T) {
	provider := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart": `))
	})

	_, err := provider.Fetch(context.Background(), FetchRequest{Symbol: "AAPL", Start: day("2024-01-02"), End: day("2024-01-03")})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParse, errs.Classify(err))
}

func TestYahooProvider_Info(t *testing.T) {
	provider := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"))
		_, _ = w.Write([]byte(dailyChart))
	})

	info, err := provider.Info(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "USD", info["currency"])
	assert.Equal(t, "America/New_York", info["exchangeTimezoneName"])
	require.NoError(t, provider.HealthCheck(context.Background()))
}

func TestNewProvider(t *testing.T) {
	cfg := config.DefaultConfig().Provider

	provider, err := NewProvider(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "yahoo_finance", provider.Name())

	cfg.Type = "bloomberg"
	_, err = NewProvider(cfg, quietLogger())
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
}

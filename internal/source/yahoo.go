package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// Yahoo chart API
	yahooBaseURL   = "https://query1.finance.yahoo.com"
	chartEndpoint  = "/v8/finance/chart/%s"
	yahooNotFound  = "Not Found"
	yahooUserAgent = "Mozilla/5.0 (compatible; go-price-sync/1.0)"

	// Rate limiting configuration
	defaultRequestsPerSecond = 5
	rateLimitBurst           = 1

	// Request configuration
	requestTimeout     = 20 * time.Second
	maxErrorBodyLength = 256

	// Raw prices are published with cent precision; adjusted close keeps more.
	rawPricePlaces      = 2
	adjustedPricePlaces = 6
)

// YahooConfig configures the Yahoo chart provider.
type YahooConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond int
	UserAgent         string
	SourceName        string
}

// YahooProvider implements Provider on top of the Yahoo Finance chart API.
type YahooProvider struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	userAgent   string
	name        string
	logger      *slog.Logger
}

// NewYahooProvider creates a provider with the given configuration. Zero
// fields fall back to the package defaults.
func NewYahooProvider(cfg YahooConfig, logger *slog.Logger) *YahooProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = yahooBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = yahooUserAgent
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "yahoo_finance"
	}

	return &YahooProvider{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), rateLimitBurst),
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		name:        cfg.SourceName,
		logger:      logger.With("provider", cfg.SourceName),
	}
}

// Name implements Provider.
func (y *YahooProvider) Name() string {
	return y.name
}

// Fetch implements Provider. Each call is a single HTTP request; retries are
// the fetcher's job.
func (y *YahooProvider) Fetch(ctx context.Context, req FetchRequest) ([]Row, error) {
	interval := req.Interval
	if interval == "" {
		interval = models.IntervalDaily
	}

	params := url.Values{}
	params.Add("period1", strconv.FormatInt(models.TruncateDay(req.Start).Unix(), 10))
	params.Add("period2", strconv.FormatInt(models.TruncateDay(req.End).AddDate(0, 0, 1).Unix(), 10))
	params.Add("interval", string(interval))
	params.Add("events", "div,splits")
	params.Add("includeAdjustedClose", "true")

	body, err := y.get(ctx, req.Symbol, params)
	if err != nil {
		return nil, err
	}

	rows, err := parseChart(body, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chart response for %s: %w", req.Symbol, err)
	}

	y.logger.Debug("fetched chart",
		"symbol", req.Symbol,
		"start", req.Start.Format(models.DateLayout),
		"end", req.End.Format(models.DateLayout),
		"interval", interval,
		"rows", len(rows))

	return rows, nil
}

// Info implements Provider by returning the chart metadata block.
func (y *YahooProvider) Info(ctx context.Context, symbol string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Add("range", "5d")
	params.Add("interval", string(models.IntervalDaily))

	body, err := y.get(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	meta := gjson.GetBytes(body, "chart.result.0.meta")
	if !meta.Exists() {
		return map[string]interface{}{}, nil
	}
	info, ok := meta.Value().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("malformed chart metadata for %s", symbol)
	}
	return info, nil
}

// HealthCheck requests a well-known symbol.
func (y *YahooProvider) HealthCheck(ctx context.Context) error {
	if _, err := y.Info(ctx, "SPY"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (y *YahooProvider) get(ctx context.Context, symbol string, params url.Values) ([]byte, error) {
	if err := y.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	requestURL := y.baseURL + fmt.Sprintf(chartEndpoint, url.PathEscape(symbol)) + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", y.userAgent)

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// An unknown symbol comes back as a chart error, not as an empty result.
	if gjson.GetBytes(body, "chart.error.code").String() == yahooNotFound {
		y.logger.Debug("symbol not found", "symbol", symbol, "status", resp.StatusCode)
		return []byte(`{"chart":{"result":[]}}`), nil
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			y.logger.Warn("rate limited", "symbol", symbol, "retry_after", retryAfter)
		}
		return nil, fmt.Errorf("rate limit exceeded for %s", symbol)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, truncate(body))
	}

	return body, nil
}

// parseChart converts a chart response into rows. Rows with any missing price
// are skipped; the provider emits nulls for halted minutes.
func parseChart(body []byte, interval models.Interval) ([]Row, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed JSON")
	}

	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return []Row{}, nil
	}

	loc := exchangeLocation(result.Get("meta"))
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()
	adjCloses := result.Get("indicators.adjclose.0.adjclose").Array()

	rows := make([]Row, 0, len(timestamps))
	for i, ts := range timestamps {
		if !present(opens, i) || !present(highs, i) || !present(lows, i) || !present(closes, i) {
			continue
		}

		row := Row{
			Timestamp: wallClock(time.Unix(ts.Int(), 0).In(loc), interval),
			Open:      decimal.NewFromFloat(opens[i].Float()).Round(rawPricePlaces),
			High:      decimal.NewFromFloat(highs[i].Float()).Round(rawPricePlaces),
			Low:       decimal.NewFromFloat(lows[i].Float()).Round(rawPricePlaces),
			Close:     decimal.NewFromFloat(closes[i].Float()).Round(rawPricePlaces),
		}
		if present(volumes, i) {
			row.Volume = volumes[i].Int()
		}
		if present(adjCloses, i) {
			row.AdjClose = decimal.NewNullDecimal(decimal.NewFromFloat(adjCloses[i].Float()).Round(adjustedPricePlaces))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func present(values []gjson.Result, i int) bool {
	return i < len(values) && values[i].Type == gjson.Number
}

// exchangeLocation resolves the exchange time zone from chart metadata,
// falling back to the fixed GMT offset and then to UTC.
func exchangeLocation(meta gjson.Result) *time.Location {
	if name := meta.Get("exchangeTimezoneName").String(); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if offset := meta.Get("gmtoffset"); offset.Exists() {
		return time.FixedZone(meta.Get("timezone").String(), int(offset.Int()))
	}
	return time.UTC
}

// wallClock keeps the exchange-local wall clock of t and drops the zone.
func wallClock(t time.Time, interval models.Interval) time.Time {
	if interval == models.IntervalDaily {
		return models.TruncateDay(t)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}

	// Try to parse as HTTP date
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}

	return 0
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyLength {
		return string(body[:maxErrorBodyLength]) + "..."
	}
	return string(body)
}

// Package source fetches price bars from an external time-series provider.
//
// The Fetcher wraps a Provider with the policies the sync layer depends on:
// bounded fixed-delay retries, sequential chunking of intraday requests and
// symbol-alias fallback when the exact symbol returns no data.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnayoung/go-price-sync/internal/config"
	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/shopspring/decimal"
)

// Row is one provider observation before conversion to a Bar.
// AdjClose is set only when the provider reports an adjusted close.
type Row struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	AdjClose  decimal.NullDecimal
}

// FetchRequest asks a provider for every bar of Symbol between the calendar
// dates Start and End, both inclusive.
type FetchRequest struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Interval models.Interval
}

// Provider is the external time-series boundary. Errors it returns are opaque;
// the fetcher classifies them by message only.
type Provider interface {
	// Fetch returns the rows of one request. An unknown symbol or a period
	// without trading yields an empty slice and a nil error.
	Fetch(ctx context.Context, req FetchRequest) ([]Row, error)

	// Info returns the provider's attribute map for symbol.
	Info(ctx context.Context, symbol string) (map[string]interface{}, error)

	// Name identifies the provider in coverage metadata.
	Name() string
}

// Result is the outcome of one Fetcher.Fetch call.
type Result struct {
	// Symbol is the working symbol that produced the data; it differs from
	// the requested symbol when alias fallback was used.
	Symbol string

	Bars []models.Bar

	// HasAdjusted reports whether the provider supplied an adjusted close.
	HasAdjusted bool

	// Chunks is the number of date windows requested.
	Chunks int

	// Calls counts every provider call, including retries and alias attempts.
	Calls int
}

// ToBar converts a row to a bar carrying at most an adjusted close.
func (r Row) ToBar() models.Bar {
	return models.Bar{
		Timestamp: r.Timestamp,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		AdjClose:  r.AdjClose,
	}
}

// NewProvider creates the provider selected by cfg.Type.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Type {
	case "yahoo", "":
		return NewYahooProvider(YahooConfig{
			BaseURL:           cfg.BaseURL,
			Timeout:           config.Duration(cfg.Timeout, requestTimeout),
			RequestsPerSecond: cfg.RateLimit,
			UserAgent:         cfg.UserAgent,
			SourceName:        cfg.SourceName,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}

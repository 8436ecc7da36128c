package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnayoung/go-price-sync/internal/config"
	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/models"
	"golang.org/x/time/rate"
)

// Options configures a Fetcher.
type Options struct {
	Retry errs.RetryPolicy

	// MaxDaysPerRequest bounds the calendar days of one intraday request.
	MaxDaysPerRequest int

	// ChunkPause is the minimum spacing between consecutive chunk requests.
	ChunkPause time.Duration

	// Aliases may be nil to disable alias fallback.
	Aliases *AliasGenerator
}

// DefaultOptions mirrors the default configuration: three attempts two
// seconds apart, seven-day intraday chunks one second apart, up to three aliases.
func DefaultOptions() Options {
	cfg := config.DefaultConfig().Fetcher
	return OptionsFromConfig(cfg)
}

// OptionsFromConfig builds fetcher options from the fetcher configuration section.
func OptionsFromConfig(cfg config.FetcherConfig) Options {
	return Options{
		Retry: errs.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Delay:       config.Duration(cfg.RetryDelay, 2*time.Second),
		},
		MaxDaysPerRequest: cfg.MaxDaysPerRequest,
		ChunkPause:        config.Duration(cfg.ChunkPause, time.Second),
		Aliases:           NewAliasGenerator(cfg.Aliases, cfg.StripSuffixes, cfg.MaxAliases),
	}
}

// Fetcher retrieves bars for a symbol and date range from a Provider.
type Fetcher struct {
	provider Provider
	opts     Options
	logger   *slog.Logger
}

// NewFetcher creates a fetcher around provider.
func NewFetcher(provider Provider, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	return &Fetcher{
		provider: provider,
		opts:     opts,
		logger:   logger.With("component", "fetcher"),
	}
}

// SourceName returns the provider name recorded in coverage metadata.
func (f *Fetcher) SourceName() string {
	return f.provider.Name()
}

// Chunks splits r into the date windows requested from the provider. Daily
// ranges are a single window; intraday ranges are cut into consecutive windows
// of at most MaxDaysPerRequest calendar days.
func (f *Fetcher) Chunks(r models.DateRange, interval models.Interval) []models.DateRange {
	if interval != models.IntervalMinute || f.opts.MaxDaysPerRequest <= 0 {
		return []models.DateRange{r}
	}

	var chunks []models.DateRange
	for current := r.Start; !current.After(r.End); {
		end := current.AddDate(0, 0, f.opts.MaxDaysPerRequest-1)
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, models.DateRange{Start: current, End: end})
		current = end.AddDate(0, 0, 1)
	}
	return chunks
}

// Fetch retrieves every bar of symbol in r. Chunks are requested sequentially.
//
// When a chunk comes back empty before anything has been collected, aliases of
// symbol are tried in order and the first one that returns rows becomes the
// working symbol for the remaining chunks. An empty overall result is a
// not-found error; a chunk that still fails after the retry policy is a
// source error wrapping the last provider error.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, r models.DateRange, interval models.Interval) (*Result, error) {
	result := &Result{Symbol: symbol, Bars: []models.Bar{}}
	chunks := f.Chunks(r, interval)
	result.Chunks = len(chunks)

	var pacer *rate.Limiter
	if f.opts.ChunkPause > 0 && len(chunks) > 1 {
		pacer = rate.NewLimiter(rate.Every(f.opts.ChunkPause), 1)
	}

	logger := f.logger.With("symbol", symbol, "interval", interval)
	for i, chunk := range chunks {
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				return nil, errs.NewSourceError("fetch", symbol, err).WithContext("chunk", chunk.String())
			}
		}

		rows, err := f.fetchWithRetry(ctx, result, result.Symbol, chunk, interval, f.opts.Retry)
		if err != nil {
			logger.Error("chunk fetch failed",
				"chunk", i+1,
				"chunks", len(chunks),
				"range", chunk.String(),
				"error", err)
			return nil, errs.NewSourceError("fetch", symbol, err).
				WithContext("chunk", chunk.String()).
				WithContext("working_symbol", result.Symbol)
		}

		if len(rows) == 0 && result.Symbol == symbol && len(result.Bars) == 0 {
			if alias, aliasRows := f.tryAliases(ctx, result, symbol, chunk, interval); alias != "" {
				logger.Info("using alias", "alias", alias, "range", chunk.String())
				result.Symbol = alias
				rows = aliasRows
			}
		}

		for _, row := range rows {
			if row.AdjClose.Valid {
				result.HasAdjusted = true
			}
			result.Bars = append(result.Bars, row.ToBar())
		}

		logger.Debug("chunk fetched",
			"chunk", i+1,
			"chunks", len(chunks),
			"range", chunk.String(),
			"rows", len(rows))
	}

	if len(result.Bars) == 0 {
		return nil, errs.NewNotFoundError("fetch", symbol,
			fmt.Sprintf("no data for %s in %s", symbol, r.String())).
			WithContext("calls", result.Calls)
	}

	result.Bars = dedupeSorted(result.Bars)
	logger.Info("fetch completed",
		"working_symbol", result.Symbol,
		"bars", len(result.Bars),
		"chunks", result.Chunks,
		"calls", result.Calls)
	return result, nil
}

// Info returns the provider's attribute map, retried like a fetch.
func (f *Fetcher) Info(ctx context.Context, symbol string) (map[string]interface{}, error) {
	var info map[string]interface{}
	_, err := errs.Retry(ctx, f.opts.Retry, f.logger, "info:"+symbol, func() error {
		var err error
		info, err = f.provider.Info(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, errs.NewSourceError("info", symbol, err)
	}
	return info, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, result *Result, symbol string, chunk models.DateRange, interval models.Interval, policy errs.RetryPolicy) ([]Row, error) {
	var rows []Row
	attempts, err := errs.Retry(ctx, policy, f.logger, "fetch:"+symbol, func() error {
		var err error
		rows, err = f.provider.Fetch(ctx, FetchRequest{
			Symbol:   symbol,
			Start:    chunk.Start,
			End:      chunk.End,
			Interval: interval,
		})
		return err
	})
	result.Calls += attempts
	return rows, err
}

// tryAliases returns the first alias with rows for chunk, or "" when none has
// any. Each alias runs under the full retry policy; an alias that still fails
// afterwards is logged and skipped.
func (f *Fetcher) tryAliases(ctx context.Context, result *Result, symbol string, chunk models.DateRange, interval models.Interval) (string, []Row) {
	if f.opts.Aliases == nil {
		return "", nil
	}

	for _, alias := range f.opts.Aliases.Candidates(symbol) {
		rows, err := f.fetchWithRetry(ctx, result, alias, chunk, interval, f.opts.Retry)
		if err != nil {
			f.logger.Warn("alias attempt failed", "symbol", symbol, "alias", alias, "error", err)
			continue
		}
		if len(rows) > 0 {
			return alias, rows
		}
		f.logger.Debug("alias returned no data", "symbol", symbol, "alias", alias)
	}
	return "", nil
}

// dedupeSorted sorts bars and keeps the last bar of each timestamp.
func dedupeSorted(bars []models.Bar) []models.Bar {
	models.SortBars(bars)
	out := bars[:0]
	for i, b := range bars {
		if i+1 < len(bars) && bars[i+1].Timestamp.Equal(b.Timestamp) {
			continue
		}
		out = append(out, b)
	}
	return out
}

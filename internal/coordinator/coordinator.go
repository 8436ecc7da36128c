// Package coordinator orchestrates incremental price-series synchronization.
//
// A request moves through validation, coverage lookup, gap computation and,
// when something is missing, fetch, adjustment and merge before the requested
// slice is served. The coordinator is the only component that knows about all
// the others:
//   - storage.BarStore persists one series per (symbol, data kind)
//   - gaps.Resolver computes the missing date ranges
//   - source.Fetcher retrieves bars with retries, chunking and aliases
//   - adjuster.Adjuster derives adjusted prices for the dailyAdjusted kind
//
// Every failure is returned as a tagged *errors.SyncError.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/johnayoung/go-price-sync/internal/adjuster"
	"github.com/johnayoung/go-price-sync/internal/config"
	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/gaps"
	"github.com/johnayoung/go-price-sync/internal/logger"
	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/johnayoung/go-price-sync/internal/source"
	"github.com/johnayoung/go-price-sync/internal/storage"
)

// Config configures the coordinator.
type Config struct {
	// APITimeout bounds one whole operation, retries included. Zero disables it.
	APITimeout time.Duration

	// Workers bounds the concurrency of GetMultiple.
	Workers int

	Limits models.RequestLimits

	// MarketOpen and MarketClose are HH:MM exchange-local times.
	MarketOpen  string
	MarketClose string
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return ConfigFromSync(config.DefaultConfig().Sync)
}

// ConfigFromSync builds a coordinator configuration from the sync section.
func ConfigFromSync(cfg config.SyncConfig) Config {
	return Config{
		APITimeout: config.Duration(cfg.APITimeout, 30*time.Second),
		Workers:    cfg.Workers,
		Limits: models.RequestLimits{
			MinuteMaxSpanDays:     cfg.MinuteMaxSpanDays,
			MinuteMaxLookbackDays: cfg.MinuteMaxLookbackDays,
		},
		MarketOpen:  cfg.MarketOpen,
		MarketClose: cfg.MarketClose,
	}
}

// SeriesResult is the answer to a series request.
type SeriesResult struct {
	Symbol    string          `json:"symbol"`
	Kind      models.DataKind `json:"data_type"`
	Interval  models.Interval `json:"interval"`
	Adjusted  bool            `json:"adjusted"`
	Bars      []models.Bar    `json:"bars"`
	Count     int             `json:"count"`
	FirstDate string          `json:"first_date,omitempty"`
	LastDate  string          `json:"last_date,omitempty"`
	FromCache bool            `json:"from_cache"`

	// SourceSymbol is the alias the provider answered to, when one was used.
	SourceSymbol string `json:"source_symbol,omitempty"`

	MarketHoursOnly bool `json:"market_hours_only,omitempty"`
}

// Coordinator wires the sync components together.
type Coordinator struct {
	store    storage.BarStore
	fetcher  *source.Fetcher
	resolver *gaps.Resolver
	adjuster *adjuster.Adjuster
	config   Config
	metrics  *metricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a coordinator. A nil resolver or adjuster gets a default instance.
func New(store storage.BarStore, fetcher *source.Fetcher, resolver *gaps.Resolver, adj *adjuster.Adjuster, cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if resolver == nil {
		resolver = gaps.NewResolver(log)
	}
	if adj == nil {
		adj = adjuster.New(log)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Coordinator{
		store:    store,
		fetcher:  fetcher,
		resolver: resolver,
		adjuster: adj,
		config:   cfg,
		metrics:  newMetricsCollector(),
		logger:   log.With("component", "sync_coordinator"),
		now:      time.Now,
	}
}

// GetSeries returns the bars of symbol between start and end (YYYY-MM-DD,
// inclusive), syncing missing ranges from the provider first when
// opts.UseCache is set. With UseCache unset the store is neither read nor
// written and the whole range is fetched.
func (c *Coordinator) GetSeries(ctx context.Context, symbol, start, end string, opts models.SeriesOptions) (*SeriesResult, error) {
	ctx, _ = logger.NewSyncContext(ctx)
	ctx = logger.WithOperation(ctx, "get_series")
	started := time.Now()

	req, err := models.NewSeriesRequest(symbol, start, end, opts, c.config.Limits, c.now())
	if err != nil {
		c.metrics.recordFailure()
		return nil, errs.NewValidationError("get_series", models.NormalizeSymbol(symbol), err)
	}

	ctx = logger.WithSymbol(ctx, req.Symbol)
	ctx = logger.WithDataKind(ctx, string(req.Kind()))
	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	result, err := c.sync(ctx, req)
	duration := time.Since(started)
	log := logger.FromContext(ctx, c.logger)
	if err != nil {
		c.metrics.recordFailure()
		log.Error("series request failed",
			"range", req.Range.String(),
			"error_kind", errs.KindOf(err),
			"duration", duration,
			"error", err)
		return nil, err
	}

	c.metrics.recordSuccess(duration, result.FromCache)
	log.Info("series request completed",
		"range", req.Range.String(),
		"bars", result.Count,
		"from_cache", result.FromCache,
		"duration", duration)
	return result, nil
}

// GetDaily is GetSeries for the daily interval.
func (c *Coordinator) GetDaily(ctx context.Context, symbol, start, end string, useCache, adjusted bool) (*SeriesResult, error) {
	return c.GetSeries(ctx, symbol, start, end, models.SeriesOptions{
		Interval: models.IntervalDaily,
		UseCache: useCache,
		Adjusted: adjusted,
	})
}

// GetMinute is GetSeries for the minute interval.
func (c *Coordinator) GetMinute(ctx context.Context, symbol, start, end string, useCache bool) (*SeriesResult, error) {
	return c.GetSeries(ctx, symbol, start, end, models.SeriesOptions{
		Interval: models.IntervalMinute,
		UseCache: useCache,
	})
}

func (c *Coordinator) sync(ctx context.Context, req *models.SeriesRequest) (*SeriesResult, error) {
	kind := req.Kind()
	key := models.SeriesKey{Symbol: req.Symbol, Kind: kind}
	log := logger.FromContext(ctx, c.logger)

	if !req.Options.UseCache {
		bars, sourceSymbol, err := c.fetch(ctx, req.Symbol, req.Range, kind)
		if err != nil {
			return nil, err
		}
		series := &models.Series{Symbol: req.Symbol, Kind: kind, Bars: bars}
		return c.result(req, series, false, sourceSymbol), nil
	}

	cached, err := c.store.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrSeriesNotFound) {
			return nil, errs.NewStorageError("load", req.Symbol, err)
		}
		cached = nil
	}

	missing := c.resolver.Resolve(kind, cached, req.Range)
	if len(missing) == 0 {
		log.Debug("served from cache", "range", req.Range.String(), "cached_bars", cached.Len())
		return c.result(req, cached, true, req.Symbol), nil
	}

	var incoming []models.Bar
	var sourceSymbol string
	for _, gap := range missing {
		bars, alias, err := c.fetch(ctx, req.Symbol, gap, kind)
		if err != nil {
			if errs.IsNotFound(err) && cached.Len() > 0 {
				log.Warn("no provider data for gap, keeping cached series",
					"gap", gap.String(),
					"cached_bars", cached.Len())
				continue
			}
			return nil, err
		}
		incoming = append(incoming, bars...)
		sourceSymbol = alias
	}

	if len(incoming) == 0 {
		return c.result(req, cached, true, req.Symbol), nil
	}

	merged, inserted, err := c.store.Merge(ctx, key, incoming)
	if err != nil {
		log.Error("failed to persist fetched bars",
			"bars", len(incoming),
			"error", err)
		return nil, errs.NewStorageError("merge", req.Symbol, err).
			WithContext("fetched_bars", len(incoming))
	}
	c.metrics.recordInserted(inserted)

	log.Info("merged fetched bars",
		"gaps", len(missing),
		"fetched", len(incoming),
		"inserted", inserted,
		"stored", merged.Len())
	return c.result(req, merged, false, sourceSymbol), nil
}

// fetch retrieves one range and prepares its bars for the kind's partition.
// Bars outside r are dropped so coverage tracks the requested ranges.
func (c *Coordinator) fetch(ctx context.Context, symbol string, r models.DateRange, kind models.DataKind) ([]models.Bar, string, error) {
	fetched, err := c.fetcher.Fetch(ctx, symbol, r, kind.Interval())
	if err != nil {
		return nil, "", err
	}
	c.metrics.recordFetch(fetched.Calls, len(fetched.Bars))

	window := &models.Series{Symbol: symbol, Kind: kind, Bars: fetched.Bars}
	bars := window.Slice(r)

	if kind.IsAdjusted() {
		bars, _ = c.adjuster.Adjust(bars, fetched.HasAdjusted)
	} else {
		bars = stripAdjusted(bars)
	}
	return bars, fetched.Symbol, nil
}

func stripAdjusted(bars []models.Bar) []models.Bar {
	for i := range bars {
		bars[i].AdjOpen.Valid = false
		bars[i].AdjHigh.Valid = false
		bars[i].AdjLow.Valid = false
		bars[i].AdjClose.Valid = false
	}
	return bars
}

func (c *Coordinator) result(req *models.SeriesRequest, series *models.Series, fromCache bool, sourceSymbol string) *SeriesResult {
	kind := req.Kind()
	bars := series.Slice(req.Range)
	res := &SeriesResult{
		Symbol:    req.Symbol,
		Kind:      kind,
		Interval:  kind.Interval(),
		Adjusted:  kind.IsAdjusted(),
		Bars:      bars,
		Count:     len(bars),
		FromCache: fromCache,
	}
	if sourceSymbol != req.Symbol {
		res.SourceSymbol = sourceSymbol
	}
	if len(bars) > 0 {
		res.FirstDate = bars[0].Timestamp.Format(models.DateLayout)
		res.LastDate = bars[len(bars)-1].Timestamp.Format(models.DateLayout)
	}
	return res
}

// Info returns the provider attributes of symbol.
func (c *Coordinator) Info(ctx context.Context, symbol string) (map[string]interface{}, error) {
	sym := models.NormalizeSymbol(symbol)
	if err := models.ValidateSymbol(sym); err != nil {
		return nil, errs.NewValidationError("info", sym, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.fetcher.Info(ctx, sym)
	if err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, errs.NewNotFoundError("info", sym, "no instrument information available")
	}
	return info, nil
}

// Compare syncs the adjusted daily series of symbol and contrasts its raw and
// adjusted closes.
func (c *Coordinator) Compare(ctx context.Context, symbol, start, end string) (*adjuster.Comparison, error) {
	res, err := c.GetDaily(ctx, symbol, start, end, true, true)
	if err != nil {
		return nil, err
	}
	return adjuster.Compare(res.Bars), nil
}

// Validate syncs the adjusted daily series of symbol and validates it. An
// invalid series returns the report together with a consistency error.
func (c *Coordinator) Validate(ctx context.Context, symbol, start, end string) (*adjuster.Report, error) {
	res, err := c.GetDaily(ctx, symbol, start, end, true, true)
	if err != nil {
		return nil, err
	}

	report := c.adjuster.Validate(res.Bars)
	if !report.IsValid {
		return report, errs.NewConsistencyError("validate", res.Symbol, report.Issues).
			WithContext("statistics", report.Statistics)
	}
	return report, nil
}

// ClearCache removes the cached series of symbol for one kind, or for every
// kind when kind is empty.
func (c *Coordinator) ClearCache(ctx context.Context, symbol, kind string) error {
	sym := models.NormalizeSymbol(symbol)
	if err := models.ValidateSymbol(sym); err != nil {
		return errs.NewValidationError("clear_cache", sym, err)
	}

	var dataKind models.DataKind
	if kind != "" {
		parsed, err := models.ParseDataKind(kind)
		if err != nil {
			return errs.NewValidationError("clear_cache", sym, err)
		}
		dataKind = parsed
	}

	ctx = logger.WithSymbol(ctx, sym)
	return logger.TimedOperation(ctx, c.logger, "clear_cache", func() error {
		if err := c.store.Clear(ctx, sym, dataKind); err != nil {
			return errs.NewStorageError("clear_cache", sym, err)
		}
		return nil
	})
}

// ListCachedSymbols lists every symbol with at least one cached series.
func (c *Coordinator) ListCachedSymbols(ctx context.Context) ([]models.SymbolListing, error) {
	listings, err := c.store.ListSymbols(ctx)
	if err != nil {
		return nil, errs.NewStorageError("list_symbols", "", err)
	}
	return listings, nil
}

// Stats returns the coverage statistics of one cached series.
func (c *Coordinator) Stats(ctx context.Context, symbol, kind string) (*models.SeriesStats, error) {
	sym := models.NormalizeSymbol(symbol)
	if err := models.ValidateSymbol(sym); err != nil {
		return nil, errs.NewValidationError("stats", sym, err)
	}
	if kind == "" {
		kind = string(models.KindDailyAdjusted)
	}
	dataKind, err := models.ParseDataKind(kind)
	if err != nil {
		return nil, errs.NewValidationError("stats", sym, err)
	}

	stats, err := c.store.Stats(ctx, models.SeriesKey{Symbol: sym, Kind: dataKind})
	if err != nil {
		if errors.Is(err, storage.ErrSeriesNotFound) {
			return nil, errs.NewNotFoundError("stats", sym, "no cached data for "+sym+"/"+string(dataKind))
		}
		return nil, errs.NewStorageError("stats", sym, err)
	}
	return stats, nil
}

// Metrics returns a snapshot of the request counters.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics.snapshot()
}

// Health checks the store backend when it supports health checks.
func (c *Coordinator) Health(ctx context.Context) error {
	if hc, ok := c.store.(storage.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return errs.NewStorageError("health", "", err)
		}
	}
	return nil
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.APITimeout > 0 {
		return context.WithTimeout(ctx, c.config.APITimeout)
	}
	return context.WithCancel(ctx)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"
)

// DuckDBStore implements BarStore using DuckDB as the backend.
// Prices are stored as exact decimal strings; a merge is a single transaction
// of INSERT OR REPLACE statements keyed by (symbol, kind, ts), so the newly
// supplied bar wins on timestamp collisions and a failed merge rolls back.
type DuckDBStore struct {
	db         *sql.DB
	dbPath     string
	sourceName string
	logger     *slog.Logger
	mu         sync.RWMutex
	locks      *keyLocks
	now        func() time.Time
}

// NewDuckDBStore opens the database at dbPath and creates the schema.
// The dbPath can be ":memory:" for an in-memory database or a file path.
func NewDuckDBStore(ctx context.Context, dbPath, sourceName string, logger *slog.Logger) (*DuckDBStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, &StorageError{Operation: "open", Path: dbPath, Err: fmt.Errorf("failed to open DuckDB database: %w", err)}
	}

	// Single writer connection as recommended for DuckDB
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &DuckDBStore{
		db:         db,
		dbPath:     dbPath,
		sourceName: sourceName,
		logger:     logger,
		locks:      newKeyLocks(),
		now:        time.Now,
	}

	if err := store.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initialize creates the required tables and indexes. It is idempotent.
func (d *DuckDBStore) initialize(ctx context.Context) error {
	d.logger.Info("initializing DuckDB storage", "db_path", d.dbPath)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol VARCHAR NOT NULL,
			kind VARCHAR NOT NULL,
			ts TIMESTAMP NOT NULL,
			open VARCHAR NOT NULL,
			high VARCHAR NOT NULL,
			low VARCHAR NOT NULL,
			close VARCHAR NOT NULL,
			volume BIGINT NOT NULL CHECK (volume >= 0),
			adj_open VARCHAR,
			adj_high VARCHAR,
			adj_low VARCHAR,
			adj_close VARCHAR,
			PRIMARY KEY (symbol, kind, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS series_meta (
			symbol VARCHAR NOT NULL,
			kind VARCHAR NOT NULL,
			last_update TIMESTAMP NOT NULL,
			source VARCHAR NOT NULL,
			PRIMARY KEY (symbol, kind)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_bars_symbol_kind ON bars (symbol, kind)",
	}

	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Operation: "initialize", Path: d.dbPath, Err: fmt.Errorf("failed to create schema: %w", err)}
		}
	}

	d.logger.Info("DuckDB storage initialized successfully")
	return nil
}

func (d *DuckDBStore) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, fmt.Errorf("database connection is closed")
	}
	return d.db, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Load implements SeriesReader.Load
func (d *DuckDBStore) Load(ctx context.Context, key models.SeriesKey) (*models.Series, error) {
	db, err := d.conn()
	if err != nil {
		return nil, NewLoadError(key, "bars", err)
	}
	bars, err := d.queryBars(ctx, db, key)
	if err != nil {
		return nil, NewLoadError(key, "bars", err)
	}
	if len(bars) == 0 {
		return nil, ErrSeriesNotFound
	}
	return &models.Series{Symbol: key.Symbol, Kind: key.Kind, Bars: bars}, nil
}

func (d *DuckDBStore) queryBars(ctx context.Context, q queryer, key models.SeriesKey) ([]models.Bar, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, adj_open, adj_high, adj_low, adj_close
		FROM bars
		WHERE symbol = $1 AND kind = $2
		ORDER BY ts ASC`, key.Symbol, string(key.Kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars := []models.Bar{}
	for rows.Next() {
		var (
			ts                                 time.Time
			open, high, low, close             string
			volume                             int64
			adjOpen, adjHigh, adjLow, adjClose sql.NullString
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close, &volume, &adjOpen, &adjHigh, &adjLow, &adjClose); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b, err := models.NewBar(ts.UTC(), open, high, low, close, volume)
		if err != nil {
			return nil, err
		}
		if b.AdjOpen, err = scanNullDecimal(adjOpen); err != nil {
			return nil, err
		}
		if b.AdjHigh, err = scanNullDecimal(adjHigh); err != nil {
			return nil, err
		}
		if b.AdjLow, err = scanNullDecimal(adjLow); err != nil {
			return nil, err
		}
		if b.AdjClose, err = scanNullDecimal(adjClose); err != nil {
			return nil, err
		}
		bars = append(bars, *b)
	}
	return bars, rows.Err()
}

func scanNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	return parseNull(s.String)
}

func nullArg(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// Merge implements SeriesWriter.Merge
func (d *DuckDBStore) Merge(ctx context.Context, key models.SeriesKey, bars []models.Bar) (*models.Series, int, error) {
	unlock := d.locks.lock(key)
	defer unlock()

	db, err := d.conn()
	if err != nil {
		return nil, 0, NewMergeError(key, "bars", err)
	}

	// Collapse duplicate timestamps inside the batch first; the last one wins.
	incoming, _ := MergeBars(nil, bars)

	start := time.Now()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, NewMergeError(key, "bars", fmt.Errorf("failed to begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	countQuery := "SELECT COUNT(*) FROM bars WHERE symbol = $1 AND kind = $2"
	var before int
	if err := tx.QueryRowContext(ctx, countQuery, key.Symbol, string(key.Kind)).Scan(&before); err != nil {
		return nil, 0, NewMergeError(key, "bars", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars
			(symbol, kind, ts, open, high, low, close, volume, adj_open, adj_high, adj_low, adj_close)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return nil, 0, NewMergeError(key, "bars", fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	for _, b := range incoming {
		if _, err := stmt.ExecContext(ctx,
			key.Symbol, string(key.Kind), b.Timestamp,
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume,
			nullArg(b.AdjOpen), nullArg(b.AdjHigh), nullArg(b.AdjLow), nullArg(b.AdjClose),
		); err != nil {
			return nil, 0, NewMergeError(key, "bars", fmt.Errorf("failed to insert %s: %w", b.String(), err))
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO series_meta (symbol, kind, last_update, source)
		VALUES ($1, $2, $3, $4)`,
		key.Symbol, string(key.Kind), d.now().UTC(), d.sourceName); err != nil {
		return nil, 0, NewMergeError(key, "series_meta", err)
	}

	merged, err := d.queryBars(ctx, tx, key)
	if err != nil {
		return nil, 0, NewMergeError(key, "bars", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, NewMergeError(key, "bars", fmt.Errorf("failed to commit: %w", err))
	}
	committed = true

	inserted := len(merged) - before
	d.logger.Debug("merged series",
		"symbol", key.Symbol,
		"kind", key.Kind,
		"incoming", len(bars),
		"inserted", inserted,
		"duration", time.Since(start))

	return &models.Series{Symbol: key.Symbol, Kind: key.Kind, Bars: merged}, inserted, nil
}

// Clear implements SeriesWriter.Clear
func (d *DuckDBStore) Clear(ctx context.Context, symbol string, kind models.DataKind) error {
	kinds := clearKinds(kind)
	unlock := d.locks.lockSymbol(symbol, kinds)
	defer unlock()

	db, err := d.conn()
	if err != nil {
		return NewClearError(symbol, kind, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return NewClearError(symbol, kind, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"bars", "series_meta"} {
		for _, k := range kinds {
			query := fmt.Sprintf("DELETE FROM %s WHERE symbol = $1 AND kind = $2", table)
			if _, err := tx.ExecContext(ctx, query, symbol, string(k)); err != nil {
				return NewClearError(symbol, kind, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return NewClearError(symbol, kind, err)
	}

	d.logger.Info("cleared cached series", "symbol", symbol, "kind", kindLabel(kind))
	return nil
}

// Stats implements SeriesReader.Stats
func (d *DuckDBStore) Stats(ctx context.Context, key models.SeriesKey) (*models.SeriesStats, error) {
	series, err := d.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	db, err := d.conn()
	if err != nil {
		return nil, NewStorageError("stats", key, "series_meta", err)
	}

	meta := models.BuildCoverage(series, d.sourceName, time.Time{})
	var (
		lastUpdate time.Time
		source     string
	)
	err = db.QueryRowContext(ctx,
		"SELECT last_update, source FROM series_meta WHERE symbol = $1 AND kind = $2",
		key.Symbol, string(key.Kind)).Scan(&lastUpdate, &source)
	switch {
	case err == nil:
		meta.LastSyncedAt = lastUpdate.UTC()
		meta.SourceName = source
	case !errors.Is(err, sql.ErrNoRows):
		return nil, NewStorageError("stats", key, "series_meta", err)
	}

	return buildStats(series, meta, 0), nil
}

// ListSymbols implements SeriesReader.ListSymbols
func (d *DuckDBStore) ListSymbols(ctx context.Context) ([]models.SymbolListing, error) {
	db, err := d.conn()
	if err != nil {
		return nil, &StorageError{Operation: "list", Path: "bars", Err: err}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT b.symbol, b.kind, COUNT(*) AS record_count, m.last_update
		FROM bars b
		LEFT JOIN series_meta m ON m.symbol = b.symbol AND m.kind = b.kind
		GROUP BY b.symbol, b.kind, m.last_update`)
	if err != nil {
		return nil, &StorageError{Operation: "list", Path: "bars", Err: err}
	}
	defer rows.Close()

	bySymbol := make(map[string]*models.SymbolListing)
	for rows.Next() {
		var (
			symbol, kind string
			count        int
			lastUpdate   sql.NullTime
		)
		if err := rows.Scan(&symbol, &kind, &count, &lastUpdate); err != nil {
			return nil, &StorageError{Operation: "list", Path: "bars", Err: err}
		}
		listing, ok := bySymbol[symbol]
		if !ok {
			listing = &models.SymbolListing{Symbol: symbol}
			bySymbol[symbol] = listing
		}
		item := models.KindListing{Kind: models.DataKind(kind), RecordCount: count}
		if lastUpdate.Valid {
			item.LastUpdate = lastUpdate.Time.UTC()
		}
		listing.Kinds = append(listing.Kinds, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Operation: "list", Path: "bars", Err: err}
	}

	return sortListings(bySymbol), nil
}

// HealthCheck performs a lightweight query to verify database connectivity.
func (d *DuckDBStore) HealthCheck(ctx context.Context) error {
	db, err := d.conn()
	if err != nil {
		return &StorageError{Operation: "health_check", Err: err}
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return &StorageError{Operation: "health_check", Err: fmt.Errorf("database health check failed: %w", err)}
	}
	if result != 1 {
		return &StorageError{Operation: "health_check", Err: fmt.Errorf("unexpected health check result: %d", result)}
	}
	return nil
}

// Close implements BarStore.Close
func (d *DuckDBStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		d.logger.Info("closing DuckDB storage")
		if err := d.db.Close(); err != nil {
			return &StorageError{Operation: "close", Err: fmt.Errorf("failed to close database: %w", err)}
		}
		d.db = nil
	}
	return nil
}

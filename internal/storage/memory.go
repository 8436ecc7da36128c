package storage

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
)

// MemoryStore provides an in-memory implementation of BarStore.
// It is used for tests and for running the service without a data directory.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[models.SeriesKey]*memoryEntry
	closed bool

	locks      *keyLocks
	sourceName string
	logger     *slog.Logger
	now        func() time.Time
}

type memoryEntry struct {
	bars     []models.Bar
	syncedAt time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(sourceName string, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		series:     make(map[models.SeriesKey]*memoryEntry),
		locks:      newKeyLocks(),
		sourceName: sourceName,
		logger:     logger,
		now:        time.Now,
	}
}

var errStoreClosed = errors.New("storage is closed")

// Load implements SeriesReader.Load
func (m *MemoryStore) Load(ctx context.Context, key models.SeriesKey) (*models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewLoadError(key, "", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewLoadError(key, "", errStoreClosed)
	}
	entry, ok := m.series[key]
	if !ok {
		return nil, ErrSeriesNotFound
	}
	return &models.Series{Symbol: key.Symbol, Kind: key.Kind, Bars: models.CloneBars(entry.bars)}, nil
}

// Merge implements SeriesWriter.Merge
func (m *MemoryStore) Merge(ctx context.Context, key models.SeriesKey, bars []models.Bar) (*models.Series, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, NewMergeError(key, "", err)
	}

	unlock := m.locks.lock(key)
	defer unlock()

	m.mu.RLock()
	closed := m.closed
	var current []models.Bar
	if entry, ok := m.series[key]; ok {
		current = entry.bars
	}
	m.mu.RUnlock()

	if closed {
		return nil, 0, NewMergeError(key, "", errStoreClosed)
	}

	merged, inserted := MergeBars(current, bars)

	m.mu.Lock()
	m.series[key] = &memoryEntry{bars: merged, syncedAt: m.now().UTC()}
	m.mu.Unlock()

	return &models.Series{Symbol: key.Symbol, Kind: key.Kind, Bars: models.CloneBars(merged)}, inserted, nil
}

// Clear implements SeriesWriter.Clear
func (m *MemoryStore) Clear(ctx context.Context, symbol string, kind models.DataKind) error {
	if err := ctx.Err(); err != nil {
		return NewClearError(symbol, kind, err)
	}

	kinds := clearKinds(kind)
	unlock := m.locks.lockSymbol(symbol, kinds)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range kinds {
		delete(m.series, models.SeriesKey{Symbol: symbol, Kind: k})
	}
	m.logger.Debug("cleared cached series", "symbol", symbol, "kind", kindLabel(kind))
	return nil
}

// Stats implements SeriesReader.Stats
func (m *MemoryStore) Stats(ctx context.Context, key models.SeriesKey) (*models.SeriesStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("stats", key, "", err)
	}

	m.mu.RLock()
	entry, ok := m.series[key]
	m.mu.RUnlock()
	if !ok || len(entry.bars) == 0 {
		return nil, ErrSeriesNotFound
	}

	series := &models.Series{Symbol: key.Symbol, Kind: key.Kind, Bars: entry.bars}
	meta := models.BuildCoverage(series, m.sourceName, entry.syncedAt)
	return buildStats(series, meta, 0), nil
}

// ListSymbols implements SeriesReader.ListSymbols
func (m *MemoryStore) ListSymbols(ctx context.Context) ([]models.SymbolListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Operation: "list", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	bySymbol := make(map[string]*models.SymbolListing)
	for key, entry := range m.series {
		listing, ok := bySymbol[key.Symbol]
		if !ok {
			listing = &models.SymbolListing{Symbol: key.Symbol}
			bySymbol[key.Symbol] = listing
		}
		listing.Kinds = append(listing.Kinds, models.KindListing{
			Kind:        key.Kind,
			LastUpdate:  entry.syncedAt,
			RecordCount: len(entry.bars),
		})
	}

	return sortListings(bySymbol), nil
}

// HealthCheck reports an error once the store has been closed.
func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return &StorageError{Operation: "health_check", Err: errStoreClosed}
	}
	return nil
}

// Close implements BarStore.Close
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var kindOrder = map[models.DataKind]int{
	models.KindDaily:         0,
	models.KindDailyAdjusted: 1,
	models.KindMinute:        2,
}

func sortListings(bySymbol map[string]*models.SymbolListing) []models.SymbolListing {
	listings := make([]models.SymbolListing, 0, len(bySymbol))
	for _, listing := range bySymbol {
		sort.Slice(listing.Kinds, func(i, j int) bool {
			return kindOrder[listing.Kinds[i].Kind] < kindOrder[listing.Kinds[j].Kind]
		})
		listings = append(listings, *listing)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Symbol < listings[j].Symbol
	})
	return listings
}

// Package storage defines the Bar Store: persistence of one ordered price series
// per (symbol, data kind) together with its derived coverage metadata.
// Implementations are provided for a directory tree of CSV or Parquet files,
// an in-memory map and a DuckDB database. Every implementation serializes
// writers per series key so concurrent merges cannot interleave.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnayoung/go-price-sync/internal/models"
)

// ErrSeriesNotFound is returned by Load and Stats when no series is stored for a key.
var ErrSeriesNotFound = errors.New("series not found")

// SeriesReader handles series retrieval.
type SeriesReader interface {
	// Load returns the full stored series for key, or ErrSeriesNotFound.
	// The returned series is a copy; callers may mutate it freely.
	Load(ctx context.Context, key models.SeriesKey) (*models.Series, error)

	// Stats returns coverage metadata and missing business day counts for key,
	// or ErrSeriesNotFound.
	Stats(ctx context.Context, key models.SeriesKey) (*models.SeriesStats, error)

	// ListSymbols lists every symbol that has at least one stored series.
	ListSymbols(ctx context.Context) ([]models.SymbolListing, error)
}

// SeriesWriter handles series mutation.
type SeriesWriter interface {
	// Merge combines the stored series with bars, keeping the incoming bar
	// when timestamps collide, and persists the result. It returns the merged
	// series and the number of timestamps that were not stored before.
	// A failed merge leaves the previously stored series intact.
	Merge(ctx context.Context, key models.SeriesKey, bars []models.Bar) (*models.Series, int, error)

	// Clear removes the series of one kind, or every kind when kind is empty.
	// Clearing a symbol that has nothing stored is not an error.
	Clear(ctx context.Context, symbol string, kind models.DataKind) error
}

// BarStore combines all storage capabilities.
type BarStore interface {
	SeriesReader
	SeriesWriter

	// Close releases any resources held by the store.
	Close() error
}

// HealthChecker is implemented by stores that can verify their backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StorageError represents errors that occur during storage operations.
type StorageError struct {
	// Operation is the storage operation that failed (e.g., "load", "merge")
	Operation string

	// Symbol and Kind identify the series involved, when there is one
	Symbol string
	Kind   models.DataKind

	// Path is the file or table involved (may be empty)
	Path string

	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	target := e.Symbol
	if e.Kind != "" {
		target += "/" + string(e.Kind)
	}
	if e.Path != "" {
		return fmt.Sprintf("storage operation %s on %s (%s) failed: %v", e.Operation, target, e.Path, e.Err)
	}
	if target != "" {
		return fmt.Sprintf("storage operation %s on %s failed: %v", e.Operation, target, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError with the provided details.
func NewStorageError(operation string, key models.SeriesKey, path string, err error) *StorageError {
	return &StorageError{
		Operation: operation,
		Symbol:    key.Symbol,
		Kind:      key.Kind,
		Path:      path,
		Err:       err,
	}
}

// NewLoadError creates a StorageError specifically for load operations.
func NewLoadError(key models.SeriesKey, path string, err error) *StorageError {
	return NewStorageError("load", key, path, err)
}

// NewMergeError creates a StorageError specifically for merge operations.
func NewMergeError(key models.SeriesKey, path string, err error) *StorageError {
	return NewStorageError("merge", key, path, err)
}

// NewClearError creates a StorageError specifically for clear operations.
func NewClearError(symbol string, kind models.DataKind, err error) *StorageError {
	return &StorageError{Operation: "clear", Symbol: symbol, Kind: kind, Err: err}
}

func clearKinds(kind models.DataKind) []models.DataKind {
	if kind == "" {
		return models.AllKinds
	}
	return []models.DataKind{kind}
}

func buildStats(series *models.Series, meta *models.CoverageMetadata, sizeBytes int64) *models.SeriesStats {
	stats := &models.SeriesStats{
		CoverageMetadata:    *meta,
		MissingBusinessDays: models.CountMissingBusinessDays(series),
		SizeBytes:           sizeBytes,
	}
	if series.Len() > 0 {
		stats.FirstDate = series.First().Format(models.DateLayout)
		stats.LastDate = series.Last().Format(models.DateLayout)
	}
	return stats
}

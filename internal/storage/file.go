package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
)

const metadataFileName = "metadata.json"

// FileStore keeps one directory per symbol and one subdirectory per data kind:
//
//	<dataDir>/<SYMBOL>/<kind>/<SYMBOL>_<kind>.<ext>
//	<dataDir>/<SYMBOL>/<kind>/metadata.json
//
// Files are written to a temporary name in the same directory and renamed into
// place, so readers observe either the previous or the new series, never a torn one.
type FileStore struct {
	dataDir    string
	codec      Codec
	sourceName string
	logger     *slog.Logger
	locks      *keyLocks
	now        func() time.Time
}

// fileMetadata is the sidecar record written next to each series file.
type fileMetadata struct {
	models.CoverageMetadata
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
}

// NewFileStore creates a file-backed store rooted at dataDir.
func NewFileStore(dataDir, format, sourceName string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	codec := NewCodec(format)
	if codec == nil {
		return nil, fmt.Errorf("unsupported storage format %q (use csv or parquet)", format)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, &StorageError{Operation: "initialize", Path: dataDir, Err: err}
	}
	return &FileStore{
		dataDir:    dataDir,
		codec:      codec,
		sourceName: sourceName,
		logger:     logger,
		locks:      newKeyLocks(),
		now:        time.Now,
	}, nil
}

// ErrPathEscape is returned when a symbol would resolve outside the data directory.
var ErrPathEscape = errors.New("symbol resolves outside the data directory")

// checkSymbol verifies that symbol names exactly one directory directly below
// dataDir before anything is read, written or removed there.
func (s *FileStore) checkSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrPathEscape)
	}
	rel, err := filepath.Rel(s.dataDir, filepath.Join(s.dataDir, symbol))
	if err != nil || rel != symbol || rel == "." || rel == ".." || strings.ContainsRune(rel, filepath.Separator) {
		return fmt.Errorf("%w: %q", ErrPathEscape, symbol)
	}
	return nil
}

func (s *FileStore) seriesDir(key models.SeriesKey) string {
	return filepath.Join(s.dataDir, key.Symbol, string(key.Kind))
}

func (s *FileStore) dataFile(key models.SeriesKey) string {
	name := fmt.Sprintf("%s_%s.%s", key.Symbol, key.Kind, s.codec.Extension())
	return filepath.Join(s.seriesDir(key), name)
}

func (s *FileStore) metadataFile(key models.SeriesKey) string {
	return filepath.Join(s.seriesDir(key), metadataFileName)
}

// Load implements SeriesReader.Load
func (s *FileStore) Load(ctx context.Context, key models.SeriesKey) (*models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewLoadError(key, "", err)
	}
	if err := s.checkSymbol(key.Symbol); err != nil {
		return nil, NewLoadError(key, "", err)
	}
	return s.load(key)
}

func (s *FileStore) load(key models.SeriesKey) (*models.Series, error) {
	path := s.dataFile(key)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSeriesNotFound
		}
		return nil, NewLoadError(key, path, err)
	}

	bars, err := s.codec.Read(path, key.Kind)
	if err != nil {
		return nil, NewLoadError(key, path, err)
	}
	models.SortBars(bars)

	return &models.Series{Symbol: key.Symbol, Kind: key.Kind, Bars: bars}, nil
}

// Merge implements SeriesWriter.Merge
func (s *FileStore) Merge(ctx context.Context, key models.SeriesKey, bars []models.Bar) (*models.Series, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, NewMergeError(key, "", err)
	}
	if err := s.checkSymbol(key.Symbol); err != nil {
		return nil, 0, NewMergeError(key, "", err)
	}

	unlock := s.locks.lock(key)
	defer unlock()

	existing, err := s.load(key)
	if err != nil && !errors.Is(err, ErrSeriesNotFound) {
		return nil, 0, err
	}
	var current []models.Bar
	if existing != nil {
		current = existing.Bars
	}

	merged, inserted := MergeBars(current, bars)
	series := &models.Series{Symbol: key.Symbol, Kind: key.Kind, Bars: merged}

	if err := os.MkdirAll(s.seriesDir(key), 0755); err != nil {
		return nil, 0, NewMergeError(key, s.seriesDir(key), err)
	}

	path := s.dataFile(key)
	if err := writeAtomic(path, func(tmp string) error {
		return s.codec.Write(tmp, key.Kind, merged)
	}); err != nil {
		return nil, 0, NewMergeError(key, path, err)
	}

	meta := models.BuildCoverage(series, s.sourceName, s.now())
	if err := s.writeMetadata(key, series, meta); err != nil {
		// The series file is already published; metadata is derived and is
		// rebuilt on the next merge.
		s.logger.Warn("failed to write series metadata",
			"symbol", key.Symbol,
			"kind", key.Kind,
			"error", err)
	}

	s.logger.Debug("merged series",
		"symbol", key.Symbol,
		"kind", key.Kind,
		"incoming", len(bars),
		"inserted", inserted,
		"total", len(merged))

	return series, inserted, nil
}

func (s *FileStore) writeMetadata(key models.SeriesKey, series *models.Series, meta *models.CoverageMetadata) error {
	record := fileMetadata{CoverageMetadata: *meta}
	if series.Len() > 0 {
		record.FirstDate = series.First().Format(models.DateLayout)
		record.LastDate = series.Last().Format(models.DateLayout)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.metadataFile(key), func(tmp string) error {
		return os.WriteFile(tmp, data, 0644)
	})
}

func (s *FileStore) readMetadata(key models.SeriesKey) (*fileMetadata, error) {
	data, err := os.ReadFile(s.metadataFile(key))
	if err != nil {
		return nil, err
	}
	var record fileMetadata
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Clear implements SeriesWriter.Clear
func (s *FileStore) Clear(ctx context.Context, symbol string, kind models.DataKind) error {
	if err := ctx.Err(); err != nil {
		return NewClearError(symbol, kind, err)
	}
	if err := s.checkSymbol(symbol); err != nil {
		return NewClearError(symbol, kind, err)
	}

	kinds := clearKinds(kind)
	unlock := s.locks.lockSymbol(symbol, kinds)
	defer unlock()

	target := filepath.Join(s.dataDir, symbol)
	if kind != "" {
		target = s.seriesDir(models.SeriesKey{Symbol: symbol, Kind: kind})
	}
	if err := os.RemoveAll(target); err != nil {
		return NewClearError(symbol, kind, err)
	}

	s.logger.Info("cleared cached series", "symbol", symbol, "kind", kindLabel(kind))
	return nil
}

// Stats implements SeriesReader.Stats
func (s *FileStore) Stats(ctx context.Context, key models.SeriesKey) (*models.SeriesStats, error) {
	series, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, ErrSeriesNotFound
	}

	meta := models.BuildCoverage(series, s.sourceName, time.Time{})
	if record, err := s.readMetadata(key); err == nil {
		meta.LastSyncedAt = record.LastSyncedAt
		if record.SourceName != "" {
			meta.SourceName = record.SourceName
		}
	}

	var size int64
	if info, err := os.Stat(s.dataFile(key)); err == nil {
		size = info.Size()
		if meta.LastSyncedAt.IsZero() {
			meta.LastSyncedAt = info.ModTime().UTC()
		}
	}

	return buildStats(series, meta, size), nil
}

// ListSymbols implements SeriesReader.ListSymbols
func (s *FileStore) ListSymbols(ctx context.Context) ([]models.SymbolListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Operation: "list", Err: err}
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.SymbolListing{}, nil
		}
		return nil, &StorageError{Operation: "list", Path: s.dataDir, Err: err}
	}

	listings := []models.SymbolListing{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		listing := models.SymbolListing{Symbol: entry.Name(), Kinds: []models.KindListing{}}
		for _, kind := range models.AllKinds {
			key := models.SeriesKey{Symbol: entry.Name(), Kind: kind}
			if _, err := os.Stat(s.dataFile(key)); err != nil {
				continue
			}
			item := models.KindListing{Kind: kind}
			if record, err := s.readMetadata(key); err == nil {
				item.LastUpdate = record.LastSyncedAt
				item.RecordCount = record.RecordCount
			}
			listing.Kinds = append(listing.Kinds, item)
		}
		if len(listing.Kinds) > 0 {
			listings = append(listings, listing)
		}
	}
	return listings, nil
}

// HealthCheck verifies the data directory is still present.
func (s *FileStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return &StorageError{Operation: "health_check", Path: s.dataDir, Err: err}
	}
	if !info.IsDir() {
		return &StorageError{Operation: "health_check", Path: s.dataDir, Err: fmt.Errorf("not a directory")}
	}
	return nil
}

// Close implements BarStore.Close
func (s *FileStore) Close() error {
	return nil
}

// writeAtomic calls write with a temporary path next to path and renames the
// result over path only when write succeeds.
func writeAtomic(path string, write func(tmp string) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func kindLabel(kind models.DataKind) string {
	if kind == "" {
		return "all"
	}
	return string(kind)
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/johnayoung/go-price-sync/internal/config"
)

// New builds the store selected by cfg.Type. sourceName is recorded in the
// coverage metadata of every series the store persists.
func New(ctx context.Context, cfg config.StorageConfig, sourceName string, logger *slog.Logger) (BarStore, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "file":
		return NewFileStore(cfg.DataDir, cfg.Format, sourceName, logger)
	case "memory":
		return NewMemoryStore(sourceName, logger), nil
	case "duckdb":
		return NewDuckDBStore(ctx, cfg.DatabaseURL, sourceName, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

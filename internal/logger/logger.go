// Package logger provides structured logging with context propagation for the price sync service.
// It wraps the standard library's slog package with component-specific loggers,
// sync/request tracing attributes and configurable output, including rotating log files.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/go-price-sync/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for an inbound API request ID
	RequestIDKey ContextKey = "request_id"
	// OperationKey is the context key for operation name
	OperationKey ContextKey = "operation"
	// SymbolKey is the context key for the ticker symbol
	SymbolKey ContextKey = "symbol"
	// DataKindKey is the context key for the series data kind
	DataKindKey ContextKey = "data_kind"
	// SyncIDKey is the context key for one coordinator sync operation
	SyncIDKey ContextKey = "sync_id"
)

var contextKeys = []ContextKey{TraceIDKey, RequestIDKey, OperationKey, SymbolKey, DataKindKey, SyncIDKey}

// LoggerManager manages structured logging for the application
type LoggerManager struct {
	baseLogger     *slog.Logger
	config         config.LoggingConfig
	writer         io.WriteCloser
	mu             sync.Mutex
	componentCache map[string]*slog.Logger
}

// ComponentLogger represents a logger for a specific component
type ComponentLogger struct {
	*slog.Logger
	component string
}

// NewLoggerManager creates a new logger manager with the specified configuration
func NewLoggerManager(cfg config.LoggingConfig) (*LoggerManager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: strings.EqualFold(cfg.Level, "debug"),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	baseAttrs := make([]slog.Attr, 0, len(cfg.ContextFields))
	for key, value := range cfg.ContextFields {
		baseAttrs = append(baseAttrs, slog.String(key, value))
	}
	if len(baseAttrs) > 0 {
		handler = handler.WithAttrs(baseAttrs)
	}

	return &LoggerManager{
		baseLogger:     slog.New(handler),
		config:         cfg,
		writer:         writer,
		componentCache: make(map[string]*slog.Logger),
	}, nil
}

// createWriter creates the appropriate writer based on configuration
func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stderr":
		return nopWriteCloser{os.Stderr}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is 'file'")
		}

		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}, nil
	default:
		return nopWriteCloser{os.Stdout}, nil
	}
}

// nopWriteCloser wraps an io.Writer to provide a Close method
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// ParseLevel converts string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the base logger instance
func (lm *LoggerManager) GetLogger() *slog.Logger {
	return lm.baseLogger
}

// GetComponentLogger returns a logger for the specified component
func (lm *LoggerManager) GetComponentLogger(component string) *ComponentLogger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if cached, exists := lm.componentCache[component]; exists {
		return &ComponentLogger{Logger: cached, component: component}
	}

	componentLogger := lm.baseLogger.With(slog.String("component", component))
	lm.componentCache[component] = componentLogger

	return &ComponentLogger{Logger: componentLogger, component: component}
}

// WithContext creates a logger that includes context values
func (lm *LoggerManager) WithContext(ctx context.Context) *slog.Logger {
	attrs := extractContextAttributes(ctx)
	if len(attrs) == 0 {
		return lm.baseLogger
	}
	return lm.baseLogger.With(attrs...)
}

// Close closes the logger and any associated resources
func (lm *LoggerManager) Close() error {
	if lm.writer != nil {
		return lm.writer.Close()
	}
	return nil
}

// extractContextAttributes extracts logging attributes from context
func extractContextAttributes(ctx context.Context) []interface{} {
	var attrs []interface{}
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// Component returns the component name of the logger
func (cl *ComponentLogger) Component() string {
	return cl.component
}

// WithSymbol returns a logger with a symbol attribute
func (cl *ComponentLogger) WithSymbol(symbol string) *slog.Logger {
	return cl.With(slog.String("symbol", symbol))
}

// ErrorWithContext logs an error with full context information
func (cl *ComponentLogger) ErrorWithContext(ctx context.Context, msg string, err error, args ...interface{}) {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, slog.Any("error", err))
	attrs = append(attrs, args...)
	cl.Error(msg, attrs...)
}

// InfoWithContext logs info with full context information
func (cl *ComponentLogger) InfoWithContext(ctx context.Context, msg string, args ...interface{}) {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, args...)
	cl.Info(msg, attrs...)
}

// FromContext returns logger enriched with the tracing attributes carried by ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := extractContextAttributes(ctx)
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// WithSymbol adds a ticker symbol to the context
func WithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, SymbolKey, symbol)
}

// WithDataKind adds a series data kind to the context
func WithDataKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, DataKindKey, kind)
}

// WithSyncID adds a sync operation ID to the context
func WithSyncID(ctx context.Context, syncID string) context.Context {
	return context.WithValue(ctx, SyncIDKey, syncID)
}

// NewSyncContext tags ctx with a fresh sync ID and returns both.
func NewSyncContext(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithSyncID(ctx, id), id
}

// GetSyncID extracts the sync ID from context
func GetSyncID(ctx context.Context) string {
	if id, ok := ctx.Value(SyncIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// TimedOperation logs an operation with automatic timing
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	logger = FromContext(ctx, logger)
	if err != nil {
		logger.Error("operation failed",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return err
	}

	logger.Info("operation completed",
		slog.String("operation", operation),
		slog.Duration("duration", duration))

	return nil
}

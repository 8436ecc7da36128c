// Package api exposes the sync coordinator over HTTP. It is a thin gin layer:
// every handler parses its parameters, calls one coordinator operation and
// writes the result in the common response envelope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/johnayoung/go-price-sync/internal/adjuster"
	"github.com/johnayoung/go-price-sync/internal/config"
	"github.com/johnayoung/go-price-sync/internal/coordinator"
	"github.com/johnayoung/go-price-sync/internal/models"
)

const shutdownTimeout = 5 * time.Second

// Service is the coordinator surface the API depends on.
type Service interface {
	GetSeries(ctx context.Context, symbol, start, end string, opts models.SeriesOptions) (*coordinator.SeriesResult, error)
	GetMultiple(ctx context.Context, symbols []string, start, end string, opts models.SeriesOptions) (*coordinator.MultiResult, error)
	GetMarketHours(ctx context.Context, symbol, date string, useCache bool) (*coordinator.SeriesResult, error)
	Aggregate(bars []models.Bar, timeframe string) ([]models.Bar, error)
	Info(ctx context.Context, symbol string) (map[string]interface{}, error)
	Compare(ctx context.Context, symbol, start, end string) (*adjuster.Comparison, error)
	Validate(ctx context.Context, symbol, start, end string) (*adjuster.Report, error)
	ListCachedSymbols(ctx context.Context) ([]models.SymbolListing, error)
	Stats(ctx context.Context, symbol, kind string) (*models.SeriesStats, error)
	ClearCache(ctx context.Context, symbol, kind string) error
	Metrics() *coordinator.Metrics
	Health(ctx context.Context) error
}

// Server serves the price sync API.
type Server struct {
	addr         string
	engine       *gin.Engine
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewServer builds the router and registers every route group.
func NewServer(cfg config.ServerConfig, svc Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger(logger))

	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	h := &handlers{svc: svc, logger: logger}
	groups := h.routes()
	prefixes := make([]string, 0, len(groups))
	for prefix := range groups {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		groups[prefix](engine.Group(prefix))
	}

	return &Server{
		addr:         addr,
		engine:       engine,
		readTimeout:  config.Duration(cfg.ReadTimeout, 10*time.Second),
		writeTimeout: config.Duration(cfg.WriteTimeout, 60*time.Second),
		logger:       logger,
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:           s.addr,
		Handler:        s.engine,
		ReadTimeout:    s.readTimeout,
		WriteTimeout:   s.writeTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

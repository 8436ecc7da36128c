package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-price-sync/internal/adjuster"
	"github.com/johnayoung/go-price-sync/internal/config"
	"github.com/johnayoung/go-price-sync/internal/coordinator"
	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/logger"
	"github.com/johnayoung/go-price-sync/internal/models"
)

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) GetSeries(ctx context.Context, symbol, start, end string, opts models.SeriesOptions) (*coordinator.SeriesResult, error) {
	args := m.Called(ctx, symbol, start, end, opts)
	res, _ := args.Get(0).(*coordinator.SeriesResult)
	return res, args.Error(1)
}

func (m *MockService) GetMultiple(ctx context.Context, symbols []string, start, end string, opts models.SeriesOptions) (*coordinator.MultiResult, error) {
	args := m.Called(ctx, symbols, start, end, opts)
	res, _ := args.Get(0).(*coordinator.MultiResult)
	return res, args.Error(1)
}

func (m *MockService) GetMarketHours(ctx context.Context, symbol, date string, useCache bool) (*coordinator.SeriesResult, error) {
	args := m.Called(ctx, symbol, date, useCache)
	res, _ := args.Get(0).(*coordinator.SeriesResult)
	return res, args.Error(1)
}

func (m *MockService) Aggregate(bars []models.Bar, timeframe string) ([]models.Bar, error) {
	args := m.Called(bars, timeframe)
	res, _ := args.Get(0).([]models.Bar)
	return res, args.Error(1)
}

func (m *MockService) Info(ctx context.Context, symbol string) (map[string]interface{}, error) {
	args := m.Called(ctx, symbol)
	res, _ := args.Get(0).(map[string]interface{})
	return res, args.Error(1)
}

func (m *MockService) Compare(ctx context.Context, symbol, start, end string) (*adjuster.Comparison, error) {
	args := m.Called(ctx, symbol, start, end)
	res, _ := args.Get(0).(*adjuster.Comparison)
	return res, args.Error(1)
}

func (m *MockService) Validate(ctx context.Context, symbol, start, end string) (*adjuster.Report, error) {
	args := m.Called(ctx, symbol, start, end)
	res, _ := args.Get(0).(*adjuster.Report)
	return res, args.Error(1)
}

func (m *MockService) ListCachedSymbols(ctx context.Context) ([]models.SymbolListing, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]models.SymbolListing)
	return res, args.Error(1)
}

func (m *MockService) Stats(ctx context.Context, symbol, kind string) (*models.SeriesStats, error) {
	args := m.Called(ctx, symbol, kind)
	res, _ := args.Get(0).(*models.SeriesStats)
	return res, args.Error(1)
}

func (m *MockService) ClearCache(ctx context.Context, symbol, kind string) error {
	args := m.Called(ctx, symbol, kind)
	return args.Error(0)
}

func (m *MockService) Metrics() *coordinator.Metrics {
	args := m.Called()
	res, _ := args.Get(0).(*coordinator.Metrics)
	return res
}

func (m *MockService) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func newTestServer(svc Service) *Server {
	return NewServer(config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}}, svc,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind errs.Kind
		want int
	}{
		{errs.KindValidation, http.StatusBadRequest},
		{errs.KindNotFound, http.StatusNotFound},
		{errs.KindSource, http.StatusBadGateway},
		{errs.KindConsistency, http.StatusUnprocessableEntity},
		{errs.KindStorage, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestGetSeries(t *testing.T) {
	svc := new(MockService)
	s := newTestServer(svc)

	want := models.SeriesOptions{Interval: models.IntervalDaily, UseCache: false, Adjusted: true}
	svc.On("GetSeries", mock.Anything, "AAPL", "2024-01-01", "2024-01-31", want).
		Return(&coordinator.SeriesResult{Symbol: "AAPL", Kind: models.KindDailyAdjusted, Count: 21}, nil)

	rec, env := do(t, s, http.MethodGet, "/api/price/AAPL?start=2024-01-01&end=2024-01-31&use_cache=false", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "dailyAdjusted", data["data_type"])
	assert.EqualValues(t, 21, data["count"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	svc.AssertExpectations(t)
}

func TestGetSeries_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   errs.Kind
	}{
		{
			name:       "validation",
			err:        errs.NewValidationError("get_series", "AAPL", &models.ValidationError{Field: "end_date", Message: "end date cannot be in the future"}),
			wantStatus: http.StatusBadRequest,
			wantKind:   errs.KindValidation,
		},
		{
			name:       "not found",
			err:        errs.NewNotFoundError("get_series", "ZZZZ", "no data"),
			wantStatus: http.StatusNotFound,
			wantKind:   errs.KindNotFound,
		},
		{
			name:       "source",
			err:        errs.NewSourceError("get_series", "AAPL", errors.New("server error 503")),
			wantStatus: http.StatusBadGateway,
			wantKind:   errs.KindSource,
		},
		{
			name:       "storage",
			err:        errs.NewStorageError("merge", "AAPL", errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantKind:   errs.KindStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("GetSeries", mock.Anything, "AAPL", "", "", mock.Anything).Return(nil, tt.err)

			rec, env := do(t, newTestServer(svc), http.MethodGet, "/api/price/AAPL", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantKind, env.Kind)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestGetSeries_InvalidBoolean(t *testing.T) {
	svc := new(MockService)
	rec, env := do(t, newTestServer(svc), http.MethodGet, "/api/price/AAPL?adjusted=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errs.KindValidation, env.Kind)
	svc.AssertNotCalled(t, "GetSeries", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMultiple(t *testing.T) {
	svc := new(MockService)
	opts := models.SeriesOptions{Interval: models.IntervalDaily, UseCache: true, Adjusted: false}
	svc.On("GetMultiple", mock.Anything, []string{"AAPL", "ZZZZ"}, "2024-01-01", "2024-01-31", opts).
		Return(&coordinator.MultiResult{
			Results: map[string]*coordinator.SeriesResult{"AAPL": {Symbol: "AAPL"}},
			Errors:  []coordinator.SymbolError{{Symbol: "ZZZZ", Error: "no data", Kind: errs.KindNotFound}},
		}, nil)

	body := `{"symbols":["AAPL","ZZZZ"],"start":"2024-01-01","end":"2024-01-31","adjusted":false}`
	rec, env := do(t, newTestServer(svc), http.MethodPost, "/api/price/multiple", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]interface{})
	assert.Len(t, data["results"], 1)
	assert.Len(t, data["errors"], 1)
	svc.AssertExpectations(t)

	rec, env = do(t, newTestServer(svc), http.MethodPost, "/api/price/multiple", `{"start":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errs.KindValidation, env.Kind)
}

func TestAggregate(t *testing.T) {
	svc := new(MockService)
	out := []models.Bar{{
		Timestamp: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
		Open:      decimal.NewFromInt(10),
		High:      decimal.NewFromInt(12),
		Low:       decimal.NewFromInt(9),
		Close:     decimal.NewFromInt(11),
		Volume:    30,
	}}
	svc.On("Aggregate", mock.MatchedBy(func(bars []models.Bar) bool { return len(bars) == 2 }), "5m").Return(out, nil)

	body := `{"timeframe":"5m","bars":[
		{"timestamp":"2024-03-04T09:30:00Z","open":"10","high":"12","low":"9","close":"10.5","volume":10},
		{"timestamp":"2024-03-04T09:31:00Z","open":"10.5","high":"11","low":"10","close":"11","volume":20}]}`
	rec, env := do(t, newTestServer(svc), http.MethodPost, "/api/price/aggregate", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["count"])
	svc.AssertExpectations(t)
}

func TestValidate_ConsistencyCarriesReport(t *testing.T) {
	svc := new(MockService)
	report := &adjuster.Report{IsValid: false, Issues: []string{"invalid adj_high in 1 bars"}}
	svc.On("Validate", mock.Anything, "AAPL", "2024-01-01", "2024-01-31").
		Return(report, errs.NewConsistencyError("validate", "AAPL", report.Issues))

	rec, env := do(t, newTestServer(svc), http.MethodGet, "/api/price/AAPL/validate?start=2024-01-01&end=2024-01-31", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errs.KindConsistency, env.Kind)
	assert.Equal(t, "AAPL", env.Context["symbol"])
	data := env.Data.(map[string]interface{})
	assert.Equal(t, false, data["is_valid"])
}

func TestCacheRoutes(t *testing.T) {
	svc := new(MockService)
	svc.On("ListCachedSymbols", mock.Anything).Return([]models.SymbolListing{{Symbol: "AAPL"}}, nil)
	svc.On("Stats", mock.Anything, "AAPL", "minute").Return(&models.SeriesStats{FirstDate: "2024-03-01"}, nil)
	svc.On("ClearCache", mock.Anything, "aapl", "daily").Return(nil)
	s := newTestServer(svc)

	rec, env := do(t, s, http.MethodGet, "/api/cache/symbols", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.Data, 1)

	rec, env = do(t, s, http.MethodGet, "/api/cache/AAPL/stats?kind=minute", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-01", env.Data.(map[string]interface{})["first_date"])

	rec, env = do(t, s, http.MethodDelete, "/api/cache/aapl?kind=daily", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cleared cache for AAPL/daily", env.Message)
	svc.AssertExpectations(t)
}

func TestHealthAndMetrics(t *testing.T) {
	svc := new(MockService)
	svc.On("Health", mock.Anything).Return(nil).Once()
	svc.On("Health", mock.Anything).Return(errs.NewStorageError("health", "", errors.New("database is closed"))).Once()
	svc.On("Metrics").Return(&coordinator.Metrics{Requests: 3, CacheHits: 1})
	s := newTestServer(svc)

	rec, env := do(t, s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = do(t, s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)

	rec, env = do(t, s, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, env.Data.(map[string]interface{})["requests"])
}

func TestRequestIDPropagation(t *testing.T) {
	svc := new(MockService)
	svc.On("Info", mock.MatchedBy(func(ctx context.Context) bool {
		return logger.GetRequestID(ctx) == "req-123"
	}), "AAPL").Return(map[string]interface{}{"currency": "USD"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/price/AAPL/info", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	newTestServer(svc).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	svc.AssertExpectations(t)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/price/AAPL", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	newTestServer(new(MockService)).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

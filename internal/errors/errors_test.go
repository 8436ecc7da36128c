package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedType  ErrorType
		wantTransient bool
	}{
		{name: "connection refused", err: fmt.Errorf("dial tcp: connection refused"), expectedType: ErrorTypeNetwork, wantTransient: true},
		{name: "deadline string", err: fmt.Errorf("context deadline exceeded"), expectedType: ErrorTypeTimeout, wantTransient: true},
		{name: "deadline wrapped", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), expectedType: ErrorTypeTimeout, wantTransient: true},
		{name: "rate limited", err: fmt.Errorf("rate limit exceeded"), expectedType: ErrorTypeRateLimit, wantTransient: true},
		{name: "server error", err: fmt.Errorf("server error 503: try later"), expectedType: ErrorTypeServerError, wantTransient: true},
		{name: "unauthorized", err: fmt.Errorf("unauthorized: invalid credentials"), expectedType: ErrorTypeAuth, wantTransient: false},
		{name: "client error", err: fmt.Errorf("client error 400: bad request"), expectedType: ErrorTypeBadRequest, wantTransient: false},
		{name: "parse failure", err: fmt.Errorf("failed to parse chart response"), expectedType: ErrorTypeParse, wantTransient: false},
		{name: "canceled", err: fmt.Errorf("stop: %w", context.Canceled), expectedType: ErrorTypeCanceled, wantTransient: false},
		{name: "opaque", err: fmt.Errorf("something odd happened"), expectedType: ErrorTypeUnknown, wantTransient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedType, Classify(tt.err))
			assert.Equal(t, tt.wantTransient, IsTransient(tt.err))
		})
	}
}

func TestSyncError_IsAndKindOf(t *testing.T) {
	err := NewNotFoundError("fetch", "ZZZZ", "no data for symbol")
	wrapped := fmt.Errorf("sync failed: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrSource))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, "[not_found] fetch(ZZZZ): no data for symbol", err.Error())

	assert.Equal(t, KindSource, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, KindValidation, KindOf(&models.ValidationError{Field: "symbol", Message: "missing"}))
}

func TestSourceError_UnwrapsUnderlying(t *testing.T) {
	cause := fmt.Errorf("server error 500")
	err := NewSourceError("fetch", "AAPL", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "provider request failed: server error 500")
}

func TestNewValidationError_CarriesField(t *testing.T) {
	err := NewValidationError("get_series", "AAPL", &models.ValidationError{Field: "end_date", Message: "end date cannot be in the future"})

	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, "end_date", err.Context["field"])
	assert.Equal(t, "[validation] get_series(AAPL): end date cannot be in the future", err.Error())
}

func TestToOutcome(t *testing.T) {
	assert.Equal(t, Outcome{Success: true}, ToOutcome(nil))

	err := NewConsistencyError("validate", "AAPL", []string{"bar 2024-01-02: adj_high below adj_close"})
	out := ToOutcome(fmt.Errorf("explicit validation: %w", err))

	assert.False(t, out.Success)
	assert.Equal(t, KindConsistency, out.Kind)
	assert.Equal(t, "AAPL", out.Context["symbol"])
	assert.Equal(t, "validate", out.Context["operation"])
	assert.Len(t, out.Context["issues"], 1)
	assert.Contains(t, out.Message, "1 consistency issue(s) found")
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, testLogger(), "fetch", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAndReturnsLastError(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, testLogger(), "fetch", func() error {
		calls++
		return fmt.Errorf("server error %d", 500+calls)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "server error 503", err.Error())
}

func TestRetry_PermanentErrorStopsImmediately(t *testing.T) {
	attempts, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond}, testLogger(), "fetch", func() error {
		return fmt.Errorf("client error 400: bad symbol")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "client error 400: bad symbol", err.Error())
}

func TestRetry_ContextCanceledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts, err := Retry(ctx, RetryPolicy{MaxAttempts: 5, Delay: time.Hour}, testLogger(), "fetch", func() error {
		cancel()
		return fmt.Errorf("connection refused")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Delay)
}

// Package errors provides the tagged error taxonomy of the price sync core,
// the structured outcome returned across the core boundary, transient-failure
// classification of opaque provider errors and the fixed-delay retry helper.
package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
)

// Kind tags a SyncError with its place in the taxonomy.
type Kind string

const (
	// KindValidation marks a malformed request. Never retried, never touches the network.
	KindValidation Kind = "validation"
	// KindNotFound marks a symbol/period with no data after every alias attempt.
	KindNotFound Kind = "not_found"
	// KindSource marks a provider failure after retries are exhausted.
	KindSource Kind = "source"
	// KindConsistency marks adjusted data that failed explicit validation.
	KindConsistency Kind = "consistency"
	// KindStorage marks a persist or load failure of the bar store.
	KindStorage Kind = "storage"
)

// SyncError is the error value propagated between components.
type SyncError struct {
	Kind      Kind                   `json:"kind"`
	Op        string                 `json:"operation"`
	Symbol    string                 `json:"symbol,omitempty"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Err       error                  `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
}

// Error implements the error interface
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Symbol != "" {
		msg += "(" + e.Symbol + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches another SyncError by kind, so errors.Is(err, ErrNotFound) works
// on any wrapped not-found error.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithContext attaches a context value and returns the error for chaining.
func (e *SyncError) WithContext(key string, value interface{}) *SyncError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrValidation  = &SyncError{Kind: KindValidation}
	ErrNotFound    = &SyncError{Kind: KindNotFound}
	ErrSource      = &SyncError{Kind: KindSource}
	ErrConsistency = &SyncError{Kind: KindConsistency}
	ErrStorage     = &SyncError{Kind: KindStorage}
)

func newError(kind Kind, op, symbol, message string, err error) *SyncError {
	return &SyncError{
		Kind:      kind,
		Op:        op,
		Symbol:    symbol,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// NewValidationError wraps a request validation failure. A *models.ValidationError
// contributes its field to the context.
func NewValidationError(op, symbol string, err error) *SyncError {
	e := newError(KindValidation, op, symbol, "invalid request", err)
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		e.Message = vErr.Message
		e.WithContext("field", vErr.Field)
		e.Err = nil
	}
	return e
}

// NewNotFoundError reports that no data exists for the symbol and period.
func NewNotFoundError(op, symbol, message string) *SyncError {
	return newError(KindNotFound, op, symbol, message, nil)
}

// NewSourceError wraps the last underlying provider error.
func NewSourceError(op, symbol string, err error) *SyncError {
	return newError(KindSource, op, symbol, "provider request failed", err)
}

// NewConsistencyError reports adjusted data that failed validation.
func NewConsistencyError(op, symbol string, issues []string) *SyncError {
	e := newError(KindConsistency, op, symbol, fmt.Sprintf("%d consistency issue(s) found", len(issues)), nil)
	return e.WithContext("issues", issues)
}

// NewStorageError wraps a bar store failure.
func NewStorageError(op, symbol string, err error) *SyncError {
	return newError(KindStorage, op, symbol, "storage operation failed", err)
}

// KindOf returns the taxonomy kind of err, looking through wrapping.
// Untagged errors report KindSource.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	return KindSource
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// Outcome is the structured failure (or success) result handed to callers
// outside the core. Failures never escape as panics.
type Outcome struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Kind    Kind                   `json:"kind,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// OK returns a successful outcome.
func OK() Outcome {
	return Outcome{Success: true}
}

// ToOutcome converts an error into a failure outcome. A nil error yields success.
func ToOutcome(err error) Outcome {
	if err == nil {
		return OK()
	}

	out := Outcome{
		Success: false,
		Message: err.Error(),
		Kind:    KindOf(err),
		Context: make(map[string]interface{}),
	}

	var se *SyncError
	if errors.As(err, &se) {
		for k, v := range se.Context {
			out.Context[k] = v
		}
		if se.Op != "" {
			out.Context["operation"] = se.Op
		}
		if se.Symbol != "" {
			out.Context["symbol"] = se.Symbol
		}
	}
	return out
}

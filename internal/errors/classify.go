package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorType is the transient/permanent classification of an opaque provider error.
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"      // Network connectivity issues
	ErrorTypeTimeout     ErrorType = "timeout"      // Request timeout
	ErrorTypeRateLimit   ErrorType = "rate_limit"   // Rate limiting from the provider
	ErrorTypeServerError ErrorType = "server_error" // HTTP 5xx errors
	ErrorTypeBadRequest  ErrorType = "bad_request"  // HTTP 4xx errors (except rate limit)
	ErrorTypeAuth        ErrorType = "authentication"
	ErrorTypeParse       ErrorType = "parse"
	ErrorTypeCanceled    ErrorType = "canceled"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Classify determines the error type from the error value and its message.
// Provider errors are opaque strings, so message patterns do most of the work.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}
	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}
	if isNetworkError(err) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "status 429"):
		return ErrorTypeRateLimit
	case strings.Contains(errStr, "server error"),
		strings.Contains(errStr, "service unavailable"),
		strings.Contains(errStr, "bad gateway"):
		return ErrorTypeServerError
	case strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "forbidden"):
		return ErrorTypeAuth
	case strings.Contains(errStr, "client error"),
		strings.Contains(errStr, "bad request"),
		strings.Contains(errStr, "invalid"):
		return ErrorTypeBadRequest
	case strings.Contains(errStr, "parse"),
		strings.Contains(errStr, "malformed"):
		return ErrorTypeParse
	}

	return ErrorTypeUnknown
}

// IsTransient reports whether a failed provider call is worth another attempt.
// Unknown errors are retried.
func IsTransient(err error) bool {
	switch Classify(err) {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// isNetworkError checks if the error is network-related
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"connection aborted",
		"no route to host",
		"host unreachable",
		"network unreachable",
		"no such host",
		"eof",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if the error is timeout-related
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

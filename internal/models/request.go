package models

import (
	"fmt"
	"regexp"
	"time"
)

// symbolPattern admits exchange tickers, share classes (BRK.B, BRK-B),
// indices (^GSPC) and futures or currency pairs (ES=F, EURUSD=X).
var symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-^=]{0,19}$`)

// ValidateSymbol checks a normalized symbol. Symbols name directories in the
// file store, so anything outside the ticker alphabet is refused.
func ValidateSymbol(symbol string) error {
	switch {
	case symbol == "":
		return &ValidationError{Field: "symbol", Message: "missing required field"}
	case symbol == "." || symbol == ".." || !symbolPattern.MatchString(symbol):
		return &ValidationError{Field: "symbol", Message: fmt.Sprintf("invalid symbol %q", symbol)}
	}
	return nil
}

// ValidationError reports a malformed or out-of-bounds request parameter.
type ValidationError struct {
	Field   string // Field is the parameter that failed validation
	Message string // Message explains the failure
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// SeriesOptions are the per-call switches of a series request.
type SeriesOptions struct {
	Interval Interval `json:"interval"`
	UseCache bool     `json:"use_cache"`
	Adjusted bool     `json:"adjusted"`
}

// DefaultSeriesOptions returns the daily defaults: cached, adjusted, 1d.
func DefaultSeriesOptions() SeriesOptions {
	return SeriesOptions{Interval: IntervalDaily, UseCache: true, Adjusted: true}
}

// SeriesRequest is a validated request for one symbol.
type SeriesRequest struct {
	Symbol  string
	Range   DateRange
	Options SeriesOptions
}

// Kind returns the data kind the request reads and writes.
func (r SeriesRequest) Kind() DataKind {
	return SelectKind(r.Options.Interval, r.Options.Adjusted)
}

// RequestLimits bound intraday requests.
type RequestLimits struct {
	MinuteMaxSpanDays     int
	MinuteMaxLookbackDays int
}

// NewSeriesRequest parses and validates raw request parameters. now is the
// reference for the "end not in the future" and lookback rules.
func NewSeriesRequest(symbol, start, end string, opts SeriesOptions, limits RequestLimits, now time.Time) (*SeriesRequest, error) {
	sym := NormalizeSymbol(symbol)
	if err := ValidateSymbol(sym); err != nil {
		return nil, err
	}

	r, err := ParseDateRange(start, end)
	if err != nil {
		return nil, err
	}

	if opts.Interval == "" {
		opts.Interval = IntervalDaily
	}

	req := &SeriesRequest{Symbol: sym, Range: r, Options: opts}
	if err := req.Validate(limits, now); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks range ordering, future dates and the intraday limits.
func (r *SeriesRequest) Validate(limits RequestLimits, now time.Time) error {
	if err := ValidateSymbol(r.Symbol); err != nil {
		return err
	}
	if r.Options.Interval != IntervalDaily && r.Options.Interval != IntervalMinute {
		return &ValidationError{Field: "interval", Message: fmt.Sprintf("unsupported interval: %s", r.Options.Interval)}
	}
	if r.Range.Start.After(r.Range.End) {
		return &ValidationError{Field: "start_date", Message: "start date must not be after end date"}
	}

	today := TruncateDay(now)
	if r.Range.End.After(today) {
		return &ValidationError{Field: "end_date", Message: "end date cannot be in the future"}
	}

	if r.Options.Interval != IntervalMinute {
		return nil
	}

	if limits.MinuteMaxSpanDays > 0 && r.Range.End.Sub(r.Range.Start) > time.Duration(limits.MinuteMaxSpanDays)*24*time.Hour {
		return &ValidationError{
			Field:   "end_date",
			Message: fmt.Sprintf("minute data range cannot exceed %d days", limits.MinuteMaxSpanDays),
		}
	}
	if limits.MinuteMaxLookbackDays > 0 {
		oldest := today.AddDate(0, 0, -limits.MinuteMaxLookbackDays)
		if r.Range.Start.Before(oldest) {
			return &ValidationError{
				Field:   "start_date",
				Message: fmt.Sprintf("minute data is only available for the last %d days", limits.MinuteMaxLookbackDays),
			}
		}
	}

	return nil
}

package models

import (
	"fmt"
	"time"
)

// DateRange is an inclusive range of calendar dates. Both ends are midnight UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range from two dates, truncating both to midnight.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: TruncateDay(start), End: TruncateDay(end)}
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate("start_date", start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate("end_date", end)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{Start: s, End: e}, nil
}

// Contains reports whether the date of t lies inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Covers reports whether r fully contains other.
func (r DateRange) Covers(other DateRange) bool {
	return !r.Start.After(other.Start) && !r.End.Before(other.End)
}

// Days returns the number of calendar days in the range, counting both ends.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// ParseDate parses a YYYY-MM-DD date into midnight UTC. field names the
// offending parameter in the returned ValidationError.
func ParseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &ValidationError{Field: field, Message: "missing required field"}
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value)}
	}
	return t, nil
}

// TruncateDay drops the time of day, keeping the wall-clock date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDays lists every weekday date in r in ascending order.
func BusinessDays(r DateRange) []time.Time {
	days := make([]time.Time, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// CoverageMetadata describes one stored series. It is derived from the series
// on every persist and is never authoritative on its own.
type CoverageMetadata struct {
	Symbol         string    `json:"symbol"`
	Kind           DataKind  `json:"data_type"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
	RecordCount    int       `json:"record_count"`
	LastSyncedAt   time.Time `json:"last_update"`
	SourceName     string    `json:"source"`
	Interval       Interval  `json:"interval"`
	Adjusted       bool      `json:"adjusted"`
}

// Range returns the covered date range.
func (m *CoverageMetadata) Range() DateRange {
	return NewDateRange(m.FirstTimestamp, m.LastTimestamp)
}

// BuildCoverage derives coverage metadata from a series.
func BuildCoverage(series *Series, source string, syncedAt time.Time) *CoverageMetadata {
	return &CoverageMetadata{
		Symbol:         series.Symbol,
		Kind:           series.Kind,
		FirstTimestamp: series.First(),
		LastTimestamp:  series.Last(),
		RecordCount:    series.Len(),
		LastSyncedAt:   syncedAt.UTC(),
		SourceName:     source,
		Interval:       series.Kind.Interval(),
		Adjusted:       series.Kind.IsAdjusted(),
	}
}

// SeriesStats is the store's statistics answer for one series.
type SeriesStats struct {
	CoverageMetadata
	FirstDate           string `json:"first_date"`
	LastDate            string `json:"last_date"`
	MissingBusinessDays int    `json:"missing_business_days"`
	SizeBytes           int64  `json:"size_bytes,omitempty"`
}

// CountMissingBusinessDays counts weekdays between the first and last bar
// with no bar on that date.
func CountMissingBusinessDays(series *Series) int {
	cov := series.Coverage()
	if cov == nil {
		return 0
	}
	present := series.Dates()
	missing := 0
	for _, d := range BusinessDays(*cov) {
		if _, ok := present[d]; !ok {
			missing++
		}
	}
	return missing
}

// KindListing summarizes one cached kind of a symbol.
type KindListing struct {
	Kind        DataKind  `json:"kind"`
	LastUpdate  time.Time `json:"last_update"`
	RecordCount int       `json:"record_count"`
}

// SymbolListing lists the cached kinds of one symbol.
type SymbolListing struct {
	Symbol string        `json:"symbol"`
	Kinds  []KindListing `json:"kinds"`
}

// Package models provides the data structures shared by every price sync component.
// It contains the bar and series models, data kinds and intervals, date ranges,
// coverage metadata and the request validation rules applied before any
// storage or network activity.
package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date and time layouts used on every boundary (files, API, CLI).
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Bar is one OHLCV observation with optional split/dividend adjusted prices.
//
// Timestamps are exchange-local wall-clock values carried in the UTC location:
// daily bars sit at midnight, minute bars carry hour, minute and second.
type Bar struct {
	Timestamp time.Time           `json:"timestamp"`
	Open      decimal.Decimal     `json:"open"`
	High      decimal.Decimal     `json:"high"`
	Low       decimal.Decimal     `json:"low"`
	Close     decimal.Decimal     `json:"close"`
	Volume    int64               `json:"volume"`
	AdjOpen   decimal.NullDecimal `json:"adj_open"`
	AdjHigh   decimal.NullDecimal `json:"adj_high"`
	AdjLow    decimal.NullDecimal `json:"adj_low"`
	AdjClose  decimal.NullDecimal `json:"adj_close"`
}

// NewBar creates a raw (unadjusted) bar from string prices.
func NewBar(timestamp time.Time, open, high, low, close string, volume int64) (*Bar, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return nil, &ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price format: %v", err)}
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return nil, &ValidationError{Field: "high", Message: fmt.Sprintf("invalid high price format: %v", err)}
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return nil, &ValidationError{Field: "low", Message: fmt.Sprintf("invalid low price format: %v", err)}
	}
	c, err := decimal.NewFromString(close)
	if err != nil {
		return nil, &ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price format: %v", err)}
	}
	if volume < 0 {
		return nil, &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	return &Bar{
		Timestamp: timestamp,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    volume,
	}, nil
}

// HasAdjusted reports whether all four adjusted prices are set.
func (b Bar) HasAdjusted() bool {
	return b.AdjOpen.Valid && b.AdjHigh.Valid && b.AdjLow.Valid && b.AdjClose.Valid
}

// Date returns the calendar date of the bar at midnight UTC.
func (b Bar) Date() time.Time {
	return TruncateDay(b.Timestamp)
}

// CheckRawOrder reports whether high and low bound the other raw prices.
// Providers are trusted, so this is informational and never enforced on ingest.
func (b Bar) CheckRawOrder() bool {
	top := decimal.Max(b.Open, b.Close, b.Low)
	bottom := decimal.Min(b.Open, b.Close, b.High)
	return b.High.GreaterThanOrEqual(top) && b.Low.LessThanOrEqual(bottom)
}

// String returns a compact representation for logs.
func (b Bar) String() string {
	return fmt.Sprintf("Bar{%s O:%s H:%s L:%s C:%s V:%d}",
		b.Timestamp.Format(DateTimeLayout), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// DataKind partitions a symbol's cached series.
type DataKind string

const (
	KindDaily         DataKind = "daily"
	KindDailyAdjusted DataKind = "dailyAdjusted"
	KindMinute        DataKind = "minute"
)

// AllKinds lists every data kind in storage order.
var AllKinds = []DataKind{KindDaily, KindDailyAdjusted, KindMinute}

// ParseDataKind accepts the canonical names plus a few case-insensitive spellings.
func ParseDataKind(s string) (DataKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "1d":
		return KindDaily, nil
	case "dailyadjusted", "daily_adjusted", "adjusted":
		return KindDailyAdjusted, nil
	case "minute", "1m", "intraday":
		return KindMinute, nil
	default:
		return "", &ValidationError{Field: "kind", Message: fmt.Sprintf("unsupported data kind: %s", s)}
	}
}

// IsIntraday reports whether bars of this kind carry a time of day.
func (k DataKind) IsIntraday() bool {
	return k == KindMinute
}

// IsAdjusted reports whether bars of this kind carry adjusted prices.
func (k DataKind) IsAdjusted() bool {
	return k == KindDailyAdjusted
}

// Interval returns the provider sampling interval for the kind.
func (k DataKind) Interval() Interval {
	if k == KindMinute {
		return IntervalMinute
	}
	return IntervalDaily
}

// Interval is a provider sampling interval.
type Interval string

const (
	IntervalDaily  Interval = "1d"
	IntervalMinute Interval = "1m"
)

// SelectKind applies the data-kind selection rule. It is used on both the read
// and the write path so a request always lands in the same partition.
func SelectKind(interval Interval, adjusted bool) DataKind {
	if interval == IntervalMinute {
		return KindMinute
	}
	if adjusted {
		return KindDailyAdjusted
	}
	return KindDaily
}

// SeriesKey identifies one stored series.
type SeriesKey struct {
	Symbol string
	Kind   DataKind
}

func (k SeriesKey) String() string {
	return k.Symbol + "/" + string(k.Kind)
}

// Series is an ordered sequence of bars for one (symbol, kind), unique per
// timestamp and strictly ascending.
type Series struct {
	Symbol string   `json:"symbol"`
	Kind   DataKind `json:"kind"`
	Bars   []Bar    `json:"bars"`
}

// Key returns the storage key of the series.
func (s *Series) Key() SeriesKey {
	return SeriesKey{Symbol: s.Symbol, Kind: s.Kind}
}

// Len returns the number of bars.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// First returns the earliest timestamp, or the zero time for an empty series.
func (s *Series) First() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// Last returns the latest timestamp, or the zero time for an empty series.
func (s *Series) Last() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}

// Coverage returns the covered date range, or nil when the series is empty.
func (s *Series) Coverage() *DateRange {
	if s.Len() == 0 {
		return nil
	}
	return &DateRange{Start: TruncateDay(s.First()), End: TruncateDay(s.Last())}
}

// Dates returns the set of calendar dates that have at least one bar.
func (s *Series) Dates() map[time.Time]struct{} {
	dates := make(map[time.Time]struct{}, s.Len())
	if s == nil {
		return dates
	}
	for _, b := range s.Bars {
		dates[b.Date()] = struct{}{}
	}
	return dates
}

// Slice returns the bars whose calendar date lies inside r, in order.
func (s *Series) Slice(r DateRange) []Bar {
	if s.Len() == 0 {
		return []Bar{}
	}
	out := make([]Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if r.Contains(b.Date()) {
			out = append(out, b)
		}
	}
	return out
}

// IsOrdered reports whether timestamps are unique and strictly ascending.
func (s *Series) IsOrdered() bool {
	return IsStrictlyAscending(s.Bars)
}

// IsStrictlyAscending reports whether bar timestamps are unique and ascending.
func IsStrictlyAscending(bars []Bar) bool {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// SortBars sorts bars ascending by timestamp in place, keeping the relative
// order of equal timestamps.
func SortBars(bars []Bar) {
	slices.SortStableFunc(bars, func(a, b Bar) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// CloneBars returns a copy of bars that shares no backing array with the input.
func CloneBars(bars []Bar) []Bar {
	if bars == nil {
		return nil
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

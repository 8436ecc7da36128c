// Package gaps computes which parts of a requested date range are missing from
// a cached series and therefore have to be fetched from the provider.
//
// Daily series are resolved against their coverage bounds only, producing at
// most one missing range. Once a series is cached, a missing range without a
// business day in it is not worth a provider call and is dropped. Minute series are resolved date by date: required
// business days that have no cached bar are grouped into contiguous runs.
package gaps

import (
	"log/slog"
	"sort"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
)

// MaxRunGapDays is the largest distance in calendar days between two
// consecutive missing dates that still belong to the same run. Three days
// absorbs an ordinary weekend.
const MaxRunGapDays = 3

// Resolver selects the diff strategy for a data kind.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a gap resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve returns the ranges of requested that must be fetched for a series
// of the given kind. cached may be nil when nothing is stored.
func (r *Resolver) Resolve(kind models.DataKind, cached *models.Series, requested models.DateRange) []models.DateRange {
	var missing []models.DateRange
	if kind.IsIntraday() {
		if cached.Len() == 0 {
			missing = []models.DateRange{requested}
		} else {
			missing = DiffMinute(cached.Dates(), requested)
		}
	} else {
		missing = DiffDaily(cached.Coverage(), requested)
		if cached.Len() > 0 {
			missing = DropNonBusiness(missing)
		}
	}

	r.logger.Debug("resolved gaps",
		"kind", kind,
		"requested", requested.String(),
		"cached_bars", cached.Len(),
		"missing_ranges", len(missing))

	return missing
}

// DiffDaily compares a coverage range with a requested range. The cases are
// checked in order and at most one range is returned:
//
//  1. no coverage: the whole request
//  2. coverage contains the request: nothing
//  3. request starts before coverage: [request start, coverage first - 1 day]
//  4. request ends after coverage: [coverage last + 1 day, request end]
//
// Case 3 does not look for a simultaneous right-side gap.
func DiffDaily(coverage *models.DateRange, requested models.DateRange) []models.DateRange {
	if coverage == nil {
		return []models.DateRange{requested}
	}

	first := models.TruncateDay(coverage.Start)
	last := models.TruncateDay(coverage.End)

	switch {
	case !first.After(requested.Start) && !last.Before(requested.End):
		return nil
	case requested.Start.Before(first):
		return []models.DateRange{{Start: requested.Start, End: first.AddDate(0, 0, -1)}}
	case requested.End.After(last):
		return []models.DateRange{{Start: last.AddDate(0, 0, 1), End: requested.End}}
	default:
		return []models.DateRange{requested}
	}
}

// DropNonBusiness removes ranges that contain no business day, such as the
// weekend between a request bound and the nearest cached bar.
func DropNonBusiness(ranges []models.DateRange) []models.DateRange {
	var kept []models.DateRange
	for _, r := range ranges {
		if len(models.BusinessDays(r)) > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

// DiffMinute returns the business days of requested that are absent from
// present, grouped into runs. A new run starts whenever two consecutive
// missing dates are more than MaxRunGapDays apart.
func DiffMinute(present map[time.Time]struct{}, requested models.DateRange) []models.DateRange {
	var missing []time.Time
	for _, d := range models.BusinessDays(requested) {
		if _, ok := present[d]; !ok {
			missing = append(missing, d)
		}
	}
	return GroupRuns(missing)
}

// GroupRuns groups dates into contiguous runs. The input need not be sorted.
func GroupRuns(dates []time.Time) []models.DateRange {
	if len(dates) == 0 {
		return nil
	}
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	runs := []models.DateRange{}
	start, end := sorted[0], sorted[0]
	for _, d := range sorted[1:] {
		if d.Sub(end) > MaxRunGapDays*24*time.Hour {
			runs = append(runs, models.DateRange{Start: start, End: end})
			start = d
		}
		end = d
	}
	return append(runs, models.DateRange{Start: start, End: end})
}

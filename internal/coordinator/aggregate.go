package coordinator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/models"
)

// Timeframes lists the supported aggregation timeframes.
var Timeframes = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
}

// Aggregate resamples bars into timeframe buckets. Each bucket takes the first
// open, highest high, lowest low, last close and summed volume of its bars and
// is stamped with the bucket start. Empty buckets are dropped. Adjusted prices
// are aggregated the same way when every bar of a bucket carries them.
func Aggregate(bars []models.Bar, timeframe string) ([]models.Bar, error) {
	step, ok := Timeframes[timeframe]
	if !ok {
		return nil, &models.ValidationError{
			Field:   "timeframe",
			Message: fmt.Sprintf("unsupported timeframe %q, expected one of 5m, 15m, 30m, 1h, 4h", timeframe),
		}
	}

	sorted := models.CloneBars(bars)
	models.SortBars(sorted)

	out := []models.Bar{}
	for i := 0; i < len(sorted); {
		bucket := sorted[i].Timestamp.Truncate(step)
		j := i + 1
		for j < len(sorted) && sorted[j].Timestamp.Truncate(step).Equal(bucket) {
			j++
		}
		out = append(out, reduce(bucket, sorted[i:j]))
		i = j
	}
	return out, nil
}

// Aggregate resamples bars and reports an unknown timeframe as a validation error.
func (c *Coordinator) Aggregate(bars []models.Bar, timeframe string) ([]models.Bar, error) {
	out, err := Aggregate(bars, timeframe)
	if err != nil {
		return nil, errs.NewValidationError("aggregate", "", err)
	}
	c.logger.Debug("aggregated bars", "timeframe", timeframe, "input", len(bars), "output", len(out))
	return out, nil
}

func reduce(bucket time.Time, group []models.Bar) models.Bar {
	first, last := group[0], group[len(group)-1]
	agg := models.Bar{
		Timestamp: bucket,
		Open:      first.Open,
		High:      first.High,
		Low:       first.Low,
		Close:     last.Close,
	}

	adjusted := true
	for _, b := range group {
		agg.High = decimal.Max(agg.High, b.High)
		agg.Low = decimal.Min(agg.Low, b.Low)
		agg.Volume += b.Volume
		adjusted = adjusted && b.HasAdjusted()
	}

	if adjusted {
		high, low := first.AdjHigh.Decimal, first.AdjLow.Decimal
		for _, b := range group[1:] {
			high = decimal.Max(high, b.AdjHigh.Decimal)
			low = decimal.Min(low, b.AdjLow.Decimal)
		}
		agg.AdjOpen = first.AdjOpen
		agg.AdjHigh = decimal.NewNullDecimal(high)
		agg.AdjLow = decimal.NewNullDecimal(low)
		agg.AdjClose = last.AdjClose
	}
	return agg
}

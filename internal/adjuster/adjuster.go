// Package adjuster derives split/dividend adjusted OHLC prices from the
// adjusted close reported by the provider, repairs the OHLC ordering of the
// scaled values and validates adjusted series on demand.
package adjuster

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/johnayoung/go-price-sync/internal/models"
)

// AdjustedPlaces is the decimal precision of derived adjusted prices.
const AdjustedPlaces = 6

// Adjuster computes adjusted prices. It holds no state besides its logger.
type Adjuster struct {
	logger *slog.Logger
}

// New creates an adjuster.
func New(logger *slog.Logger) *Adjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{logger: logger.With("component", "price_adjuster")}
}

// Factor returns adjClose/close for a bar, or one when the bar carries no
// adjusted close or its close is zero.
func Factor(b models.Bar) decimal.Decimal {
	if !b.AdjClose.Valid || b.Close.IsZero() {
		return decimal.NewFromInt(1)
	}
	return b.AdjClose.Decimal.Div(b.Close)
}

// Adjust returns a copy of bars with all four adjusted prices set, and the
// number of bars whose naive scaled high or low had to be repaired.
//
// When hasAdjustedField is false every bar gets adjClose = close, so the
// factor is one throughout. Bars without an adjusted close are treated the
// same way individually. The input slice is not modified.
func (a *Adjuster) Adjust(bars []models.Bar, hasAdjustedField bool) ([]models.Bar, int) {
	out := models.CloneBars(bars)
	repaired := 0

	for i := range out {
		b := &out[i]
		if !hasAdjustedField || !b.AdjClose.Valid {
			b.AdjClose = decimal.NewNullDecimal(b.Close)
		}

		factor := Factor(*b)
		adjOpen := b.Open.Mul(factor).Round(AdjustedPlaces)
		adjHigh := b.High.Mul(factor).Round(AdjustedPlaces)
		adjLow := b.Low.Mul(factor).Round(AdjustedPlaces)
		adjClose := b.AdjClose.Decimal

		top := decimal.Max(adjOpen, adjHigh, adjLow, adjClose)
		bottom := decimal.Min(adjOpen, adjHigh, adjLow, adjClose)
		if !top.Equal(adjHigh) || !bottom.Equal(adjLow) {
			repaired++
		}

		b.AdjOpen = decimal.NewNullDecimal(adjOpen)
		b.AdjHigh = decimal.NewNullDecimal(top)
		b.AdjLow = decimal.NewNullDecimal(bottom)
	}

	if repaired > 0 {
		a.logger.Info("repaired adjusted high/low ordering",
			"bars", len(out),
			"repaired", repaired)
	}
	a.logger.Debug("adjusted bars",
		"bars", len(out),
		"has_adjusted_field", hasAdjustedField)

	return out, repaired
}

// Statistics summarizes the adjustment factors of a series.
type Statistics struct {
	TotalBars            int     `json:"total_bars"`
	MinAdjustmentFactor  float64 `json:"min_adjustment_factor"`
	MaxAdjustmentFactor  float64 `json:"max_adjustment_factor"`
	MeanAdjustmentFactor float64 `json:"mean_adjustment_factor"`
	BarsAdjusted         int     `json:"bars_adjusted"`
}

// Report is the result of Validate.
type Report struct {
	IsValid    bool       `json:"is_valid"`
	Issues     []string   `json:"issues"`
	Statistics Statistics `json:"statistics"`
}

// Validate checks an adjusted series without modifying it. A bar is invalid
// when any adjusted price is missing, when adjHigh is below another adjusted
// price, or when adjLow is above one.
func (a *Adjuster) Validate(bars []models.Bar) *Report {
	report := &Report{IsValid: true, Issues: []string{}}
	report.Statistics.TotalBars = len(bars)

	var missing, badHigh, badLow, badRaw int
	factors := make([]float64, 0, len(bars))

	for _, b := range bars {
		if b.Open.IsNegative() || b.High.IsNegative() || b.Low.IsNegative() || b.Close.IsNegative() || b.Volume < 0 {
			badRaw++
		}

		if !b.HasAdjusted() {
			missing++
			continue
		}

		o, h, l, c := b.AdjOpen.Decimal, b.AdjHigh.Decimal, b.AdjLow.Decimal, b.AdjClose.Decimal
		if h.LessThan(o) || h.LessThan(c) || h.LessThan(l) {
			badHigh++
		}
		if l.GreaterThan(o) || l.GreaterThan(c) || l.GreaterThan(h) {
			badLow++
		}

		factor := Factor(b)
		if !factor.Equal(decimal.NewFromInt(1)) {
			report.Statistics.BarsAdjusted++
		}
		factors = append(factors, factor.InexactFloat64())
	}

	addIssue := func(count int, format string) {
		if count > 0 {
			report.IsValid = false
			report.Issues = append(report.Issues, fmt.Sprintf(format, count))
		}
	}
	addIssue(badRaw, "negative raw price or volume in %d bars")
	addIssue(missing, "missing adjusted prices in %d bars")
	addIssue(badHigh, "invalid adj_high in %d bars")
	addIssue(badLow, "invalid adj_low in %d bars")

	if len(factors) > 0 {
		report.Statistics.MinAdjustmentFactor = floats.Min(factors)
		report.Statistics.MaxAdjustmentFactor = floats.Max(factors)
		report.Statistics.MeanAdjustmentFactor = stat.Mean(factors, nil)
	}

	if !report.IsValid {
		a.logger.Warn("adjusted series failed validation",
			"bars", len(bars),
			"issues", report.Issues)
	}
	return report
}

// Comparison contrasts raw and adjusted closes of a series.
type Comparison struct {
	HasAdjustments      bool     `json:"has_adjustments"`
	AdjustmentDates     []string `json:"adjustment_dates"`
	MaxAdjustmentPct    float64  `json:"max_adjustment_pct"`
	TotalReturnRegular  float64  `json:"total_return_regular"`
	TotalReturnAdjusted float64  `json:"total_return_adjusted"`
}

// Compare reports the dates whose adjusted close differs from the close, the
// largest relative difference in percent and the first-to-last total return
// in percent on both price bases. Returns are left at zero when nothing was
// adjusted or the series has a single bar.
func Compare(bars []models.Bar) *Comparison {
	cmp := &Comparison{AdjustmentDates: []string{}}

	var pcts []float64
	for _, b := range bars {
		if !b.AdjClose.Valid || b.AdjClose.Decimal.Equal(b.Close) {
			continue
		}
		cmp.AdjustmentDates = append(cmp.AdjustmentDates, b.Timestamp.Format(models.DateLayout))
		if !b.Close.IsZero() {
			pct := b.AdjClose.Decimal.Sub(b.Close).Div(b.Close).Abs().Mul(decimal.NewFromInt(100))
			pcts = append(pcts, pct.InexactFloat64())
		}
	}

	if len(cmp.AdjustmentDates) == 0 {
		return cmp
	}
	cmp.HasAdjustments = true
	if len(pcts) > 0 {
		cmp.MaxAdjustmentPct = floats.Max(pcts)
	}

	if len(bars) > 1 {
		first, last := bars[0], bars[len(bars)-1]
		cmp.TotalReturnRegular = totalReturn(first.Close, last.Close)
		if first.AdjClose.Valid && last.AdjClose.Valid {
			cmp.TotalReturnAdjusted = totalReturn(first.AdjClose.Decimal, last.AdjClose.Decimal)
		}
	}
	return cmp
}

func totalReturn(first, last decimal.Decimal) float64 {
	if first.IsZero() {
		return 0
	}
	return last.Div(first).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

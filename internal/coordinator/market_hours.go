package coordinator

import (
	"context"
	"fmt"
	"time"

	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/models"
)

const clockLayout = "15:04"

// GetMarketHours returns the minute bars of one date whose time of day lies
// within the regular session, both bounds inclusive.
func (c *Coordinator) GetMarketHours(ctx context.Context, symbol, date string, useCache bool) (*SeriesResult, error) {
	openAt, closeAt, err := c.session()
	if err != nil {
		return nil, errs.NewValidationError("market_hours", models.NormalizeSymbol(symbol), err)
	}

	res, err := c.GetMinute(ctx, symbol, date, date, useCache)
	if err != nil {
		return nil, err
	}

	res.Bars = FilterSession(res.Bars, openAt, closeAt)
	res.Count = len(res.Bars)
	res.FirstDate, res.LastDate = "", ""
	if res.Count > 0 {
		res.FirstDate = res.Bars[0].Timestamp.Format(models.DateLayout)
		res.LastDate = res.Bars[res.Count-1].Timestamp.Format(models.DateLayout)
	}
	res.MarketHoursOnly = true
	return res, nil
}

// FilterSession keeps the bars whose time of day lies in [openAt, closeAt].
// Both are offsets from midnight.
func FilterSession(bars []models.Bar, openAt, closeAt time.Duration) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		tod := b.Timestamp.Sub(models.TruncateDay(b.Timestamp))
		if tod >= openAt && tod <= closeAt {
			out = append(out, b)
		}
	}
	return out
}

func (c *Coordinator) session() (time.Duration, time.Duration, error) {
	openAt, err := parseClock(c.config.MarketOpen, 9*time.Hour+30*time.Minute)
	if err != nil {
		return 0, 0, err
	}
	closeAt, err := parseClock(c.config.MarketClose, 16*time.Hour)
	if err != nil {
		return 0, 0, err
	}
	return openAt, closeAt, nil
}

func parseClock(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, &models.ValidationError{Field: "market_hours", Message: fmt.Sprintf("invalid time of day %q", value)}
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

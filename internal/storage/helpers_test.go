package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dailyKey    = models.SeriesKey{Symbol: "AAPL", Kind: models.KindDaily}
	adjustedKey = models.SeriesKey{Symbol: "AAPL", Kind: models.KindDailyAdjusted}
	minuteKey   = models.SeriesKey{Symbol: "AAPL", Kind: models.KindMinute}
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testBar(ts time.Time, close string) models.Bar {
	c := decimal.RequireFromString(close)
	return models.Bar{
		Timestamp: ts,
		Open:      c.Sub(decimal.NewFromInt(1)),
		High:      c.Add(decimal.NewFromInt(2)),
		Low:       c.Sub(decimal.NewFromInt(2)),
		Close:     c,
		Volume:    1000,
	}
}

func adjustedBar(ts time.Time, close, adjClose string) models.Bar {
	b := testBar(ts, close)
	adj := decimal.RequireFromString(adjClose)
	b.AdjOpen = decimal.NewNullDecimal(adj.Sub(decimal.NewFromInt(1)))
	b.AdjHigh = decimal.NewNullDecimal(adj.Add(decimal.NewFromInt(2)))
	b.AdjLow = decimal.NewNullDecimal(adj.Sub(decimal.NewFromInt(2)))
	b.AdjClose = decimal.NewNullDecimal(adj)
	return b
}

// createTestBars generates consecutive daily bars starting at start.
func createTestBars(start time.Time, count int) []models.Bar {
	bars := make([]models.Bar, count)
	for i := 0; i < count; i++ {
		bars[i] = testBar(start.AddDate(0, 0, i), fmt.Sprintf("%d.25", 100+i))
	}
	return bars
}

func assertBarsEqual(t *testing.T, expected, actual []models.Bar) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		e, a := expected[i], actual[i]
		assert.True(t, e.Timestamp.Equal(a.Timestamp), "bar %d timestamp: want %s got %s", i, e.Timestamp, a.Timestamp)
		assert.True(t, e.Open.Equal(a.Open), "bar %d open", i)
		assert.True(t, e.High.Equal(a.High), "bar %d high", i)
		assert.True(t, e.Low.Equal(a.Low), "bar %d low", i)
		assert.True(t, e.Close.Equal(a.Close), "bar %d close: want %s got %s", i, e.Close, a.Close)
		assert.Equal(t, e.Volume, a.Volume, "bar %d volume", i)
		assert.Equal(t, e.AdjClose.Valid, a.AdjClose.Valid, "bar %d adj_close validity", i)
		if e.AdjClose.Valid && a.AdjClose.Valid {
			assert.True(t, e.AdjClose.Decimal.Equal(a.AdjClose.Decimal), "bar %d adj_close", i)
			assert.True(t, e.AdjHigh.Decimal.Equal(a.AdjHigh.Decimal), "bar %d adj_high", i)
			assert.True(t, e.AdjLow.Decimal.Equal(a.AdjLow.Decimal), "bar %d adj_low", i)
			assert.True(t, e.AdjOpen.Decimal.Equal(a.AdjOpen.Decimal), "bar %d adj_open", i)
		}
	}
}

// runStoreContract exercises the behavior every BarStore must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) BarStore) {
	ctx := context.Background()

	t.Run("load missing series", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(ctx, dailyKey)
		assert.ErrorIs(t, err, ErrSeriesNotFound)

		_, err = store.Stats(ctx, dailyKey)
		assert.ErrorIs(t, err, ErrSeriesNotFound)
	})

	t.Run("merge into empty store", func(t *testing.T) {
		store := newStore(t)
		bars := createTestBars(day("2024-01-01"), 5)

		series, inserted, err := store.Merge(ctx, dailyKey, bars)
		require.NoError(t, err)
		assert.Equal(t, 5, inserted)
		assertBarsEqual(t, bars, series.Bars)

		loaded, err := store.Load(ctx, dailyKey)
		require.NoError(t, err)
		assert.Equal(t, dailyKey, loaded.Key())
		assertBarsEqual(t, bars, loaded.Bars)
	})

	t.Run("overlapping merge keeps incoming bar and stays sorted", func(t *testing.T) {
		store := newStore(t)
		_, _, err := store.Merge(ctx, dailyKey, createTestBars(day("2024-01-03"), 3))
		require.NoError(t, err)

		revised := testBar(day("2024-01-04"), "999.5")
		incoming := []models.Bar{revised, testBar(day("2024-01-01"), "50"), testBar(day("2024-01-06"), "60")}

		series, inserted, err := store.Merge(ctx, dailyKey, incoming)
		require.NoError(t, err)
		assert.Equal(t, 2, inserted)
		require.Equal(t, 5, series.Len())
		assert.True(t, series.IsOrdered())
		assert.True(t, series.Bars[2].Close.Equal(decimal.RequireFromString("999.5")))

		loaded, err := store.Load(ctx, dailyKey)
		require.NoError(t, err)
		assertBarsEqual(t, series.Bars, loaded.Bars)
	})

	t.Run("adjusted and intraday bars round trip", func(t *testing.T) {
		store := newStore(t)
		adjusted := []models.Bar{
			adjustedBar(day("2024-01-02"), "185.64", "184.938"),
			adjustedBar(day("2024-01-03"), "184.25", "183.553"),
		}
		_, _, err := store.Merge(ctx, adjustedKey, adjusted)
		require.NoError(t, err)

		minute := []models.Bar{
			testBar(day("2024-01-02").Add(9*time.Hour+30*time.Minute), "185.1"),
			testBar(day("2024-01-02").Add(9*time.Hour+31*time.Minute), "185.2"),
		}
		_, _, err = store.Merge(ctx, minuteKey, minute)
		require.NoError(t, err)

		loaded, err := store.Load(ctx, adjustedKey)
		require.NoError(t, err)
		assertBarsEqual(t, adjusted, loaded.Bars)

		loaded, err = store.Load(ctx, minuteKey)
		require.NoError(t, err)
		assertBarsEqual(t, minute, loaded.Bars)
	})

	t.Run("stats report coverage and missing business days", func(t *testing.T) {
		store := newStore(t)
		// 2024-01-01 Mon .. 2024-01-05 Fri with Wednesday missing
		bars := []models.Bar{
			testBar(day("2024-01-01"), "10"),
			testBar(day("2024-01-02"), "11"),
			testBar(day("2024-01-04"), "12"),
			testBar(day("2024-01-05"), "13"),
		}
		_, _, err := store.Merge(ctx, dailyKey, bars)
		require.NoError(t, err)

		stats, err := store.Stats(ctx, dailyKey)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", stats.Symbol)
		assert.Equal(t, models.KindDaily, stats.Kind)
		assert.Equal(t, 4, stats.RecordCount)
		assert.Equal(t, "2024-01-01", stats.FirstDate)
		assert.Equal(t, "2024-01-05", stats.LastDate)
		assert.Equal(t, 1, stats.MissingBusinessDays)
		assert.Equal(t, "test_source", stats.SourceName)
		assert.Equal(t, models.IntervalDaily, stats.Interval)
		assert.False(t, stats.LastSyncedAt.IsZero())
	})

	t.Run("clear one kind or all kinds", func(t *testing.T) {
		store := newStore(t)
		bars := createTestBars(day("2024-01-01"), 2)
		for _, key := range []models.SeriesKey{dailyKey, adjustedKey} {
			_, _, err := store.Merge(ctx, key, bars)
			require.NoError(t, err)
		}

		require.NoError(t, store.Clear(ctx, "AAPL", models.KindDaily))
		_, err := store.Load(ctx, dailyKey)
		assert.ErrorIs(t, err, ErrSeriesNotFound)
		_, err = store.Load(ctx, adjustedKey)
		assert.NoError(t, err)

		require.NoError(t, store.Clear(ctx, "AAPL", ""))
		_, err = store.Load(ctx, adjustedKey)
		assert.ErrorIs(t, err, ErrSeriesNotFound)

		assert.NoError(t, store.Clear(ctx, "NOPE", ""), "clearing nothing is not an error")
	})

	t.Run("list symbols", func(t *testing.T) {
		store := newStore(t)
		bars := createTestBars(day("2024-01-01"), 3)
		_, _, err := store.Merge(ctx, models.SeriesKey{Symbol: "MSFT", Kind: models.KindDaily}, bars)
		require.NoError(t, err)
		_, _, err = store.Merge(ctx, adjustedKey, bars)
		require.NoError(t, err)
		_, _, err = store.Merge(ctx, dailyKey, bars[:1])
		require.NoError(t, err)

		listings, err := store.ListSymbols(ctx)
		require.NoError(t, err)
		require.Len(t, listings, 2)

		assert.Equal(t, "AAPL", listings[0].Symbol)
		require.Len(t, listings[0].Kinds, 2)
		assert.Equal(t, models.KindDaily, listings[0].Kinds[0].Kind)
		assert.Equal(t, 1, listings[0].Kinds[0].RecordCount)
		assert.Equal(t, models.KindDailyAdjusted, listings[0].Kinds[1].Kind)
		assert.Equal(t, 3, listings[0].Kinds[1].RecordCount)
		assert.False(t, listings[0].Kinds[1].LastUpdate.IsZero())

		assert.Equal(t, "MSFT", listings[1].Symbol)
	})

	t.Run("concurrent merges on one key are serialized", func(t *testing.T) {
		store := newStore(t)
		const writers = 8

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				bars := createTestBars(day("2024-01-01").AddDate(0, 0, w*3), 3)
				if _, _, err := store.Merge(ctx, dailyKey, bars); err != nil {
					errs <- err
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		loaded, err := store.Load(ctx, dailyKey)
		require.NoError(t, err)
		assert.Equal(t, writers*3, loaded.Len())
		assert.True(t, loaded.IsOrdered())
	})
}

package gaps

import (
	"testing"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rng(start, end string) models.DateRange {
	return models.DateRange{Start: day(start), End: day(end)}
}

func TestDiffDaily(t *testing.T) {
	january := rng("2024-01-01", "2024-01-31")

	tests := []struct {
		name      string
		coverage  *models.DateRange
		requested models.DateRange
		expected  []models.DateRange
	}{
		{
			name:      "no coverage fetches everything",
			coverage:  nil,
			requested: rng("2024-01-10", "2024-01-20"),
			expected:  []models.DateRange{rng("2024-01-10", "2024-01-20")},
		},
		{
			name:      "request inside coverage",
			coverage:  &january,
			requested: rng("2024-01-10", "2024-01-20"),
			expected:  nil,
		},
		{
			name:      "request equal to coverage",
			coverage:  &january,
			requested: january,
			expected:  nil,
		},
		{
			name:      "left extension",
			coverage:  &january,
			requested: rng("2023-12-20", "2024-01-10"),
			expected:  []models.DateRange{rng("2023-12-20", "2023-12-31")},
		},
		{
			name:      "right extension",
			coverage:  &january,
			requested: rng("2024-01-25", "2024-02-10"),
			expected:  []models.DateRange{rng("2024-02-01", "2024-02-10")},
		},
		{
			name:      "both sides only fetch the left",
			coverage:  &january,
			requested: rng("2023-12-20", "2024-02-10"),
			expected:  []models.DateRange{rng("2023-12-20", "2023-12-31")},
		},
		{
			name:      "request entirely before coverage",
			coverage:  &january,
			requested: rng("2023-11-01", "2023-11-30"),
			expected:  []models.DateRange{rng("2023-11-01", "2023-12-31")},
		},
		{
			name:      "request entirely after coverage",
			coverage:  &january,
			requested: rng("2024-03-01", "2024-03-05"),
			expected:  []models.DateRange{rng("2024-02-01", "2024-03-05")},
		},
		{
			name:      "single day coverage",
			coverage:  &models.DateRange{Start: day("2024-01-05"), End: day("2024-01-05")},
			requested: rng("2024-01-05", "2024-01-05"),
			expected:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DiffDaily(tt.coverage, tt.requested))
		})
	}
}

func dates(values ...string) map[time.Time]struct{} {
	set := make(map[time.Time]struct{}, len(values))
	for _, v := range values {
		set[day(v)] = struct{}{}
	}
	return set
}

func TestDiffMinute(t *testing.T) {
	tests := []struct {
		name      string
		present   map[time.Time]struct{}
		requested models.DateRange
		expected  []models.DateRange
	}{
		{
			name:      "nothing cached spans weekend in one run",
			present:   dates(),
			requested: rng("2024-03-01", "2024-03-05"), // Fri..Tue
			expected:  []models.DateRange{rng("2024-03-01", "2024-03-05")},
		},
		{
			name:      "everything cached",
			present:   dates("2024-03-04", "2024-03-05", "2024-03-06"),
			requested: rng("2024-03-04", "2024-03-06"),
			expected:  nil,
		},
		{
			name:      "weekend only request needs nothing",
			present:   dates(),
			requested: rng("2024-03-02", "2024-03-03"),
			expected:  nil,
		},
		{
			name:      "cached middle splits into two runs",
			present:   dates("2024-03-05", "2024-03-06", "2024-03-07"),
			requested: rng("2024-03-04", "2024-03-08"),
			expected: []models.DateRange{
				rng("2024-03-04", "2024-03-04"),
				rng("2024-03-08", "2024-03-08"),
			},
		},
		{
			name:      "gap of exactly three days stays in one run",
			present:   dates("2024-03-05", "2024-03-06"),
			requested: rng("2024-03-04", "2024-03-07"),
			expected:  []models.DateRange{rng("2024-03-04", "2024-03-07")},
		},
		{
			name:      "cached week separates runs",
			present:   dates("2024-03-11", "2024-03-12", "2024-03-13", "2024-03-14", "2024-03-15"),
			requested: rng("2024-03-04", "2024-03-22"),
			expected: []models.DateRange{
				rng("2024-03-04", "2024-03-08"),
				rng("2024-03-18", "2024-03-22"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DiffMinute(tt.present, tt.requested))
		})
	}
}

func TestGroupRuns_Unsorted(t *testing.T) {
	runs := GroupRuns([]time.Time{day("2024-03-15"), day("2024-03-01"), day("2024-03-04")})
	assert.Equal(t, []models.DateRange{
		rng("2024-03-01", "2024-03-04"),
		rng("2024-03-15", "2024-03-15"),
	}, runs)
}

func TestDropNonBusiness(t *testing.T) {
	tests := []struct {
		name     string
		ranges   []models.DateRange
		expected []models.DateRange
	}{
		{name: "nil", ranges: nil, expected: nil},
		{name: "weekend only", ranges: []models.DateRange{rng("2024-01-06", "2024-01-07")}, expected: nil},
		{
			name:     "keeps ranges with a weekday",
			ranges:   []models.DateRange{rng("2024-01-06", "2024-01-08"), rng("2024-01-27", "2024-01-28")},
			expected: []models.DateRange{rng("2024-01-06", "2024-01-08")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DropNonBusiness(tt.ranges))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(nil)

	cached := &models.Series{
		Symbol: "AAPL",
		Kind:   models.KindDaily,
		Bars: []models.Bar{
			{Timestamp: day("2024-01-02")},
			{Timestamp: day("2024-01-31")},
		},
	}

	t.Run("daily uses coverage bounds", func(t *testing.T) {
		assert.Empty(t, r.Resolve(models.KindDaily, cached, rng("2024-01-10", "2024-01-20")))
	})

	t.Run("weekend-only gap against cached bars is dropped", func(t *testing.T) {
		// The left gap reaches Monday 2024-01-01, so it stays.
		assert.Equal(t,
			[]models.DateRange{rng("2023-12-30", "2024-01-01")},
			r.Resolve(models.KindDaily, cached, rng("2023-12-30", "2024-01-20")))

		weekdays := &models.Series{Symbol: "AAPL", Kind: models.KindDailyAdjusted, Bars: []models.Bar{
			{Timestamp: day("2024-01-08")},
			{Timestamp: day("2024-01-26")},
		}}
		assert.Empty(t, r.Resolve(models.KindDailyAdjusted, weekdays, rng("2024-01-06", "2024-01-28")))
	})

	t.Run("nil series fetches the request", func(t *testing.T) {
		req := rng("2024-01-10", "2024-01-20")
		assert.Equal(t, []models.DateRange{req}, r.Resolve(models.KindDailyAdjusted, nil, req))
		assert.Equal(t, []models.DateRange{req}, r.Resolve(models.KindMinute, nil, req))
	})

	t.Run("minute uses present dates", func(t *testing.T) {
		minute := &models.Series{
			Symbol: "AAPL",
			Kind:   models.KindMinute,
			Bars: []models.Bar{
				{Timestamp: day("2024-03-04").Add(9*time.Hour + 30*time.Minute)},
				{Timestamp: day("2024-03-04").Add(15 * time.Hour)},
			},
		}
		assert.Equal(t,
			[]models.DateRange{rng("2024-03-05", "2024-03-06")},
			r.Resolve(models.KindMinute, minute, rng("2024-03-04", "2024-03-06")))
	})
}

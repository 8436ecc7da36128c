package coordinator

import (
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of coordinator activity since start.
type Metrics struct {
	Requests         int64         `json:"requests"`
	CacheHits        int64         `json:"cache_hits"`
	Failures         int64         `json:"failures"`
	SuccessRate      float64       `json:"success_rate"`
	ProviderCalls    int64         `json:"provider_calls"`
	BarsFetched      int64         `json:"bars_fetched"`
	BarsInserted     int64         `json:"bars_inserted"`
	AvgRequestTime   time.Duration `json:"-"`
	AvgRequestTimeMS float64       `json:"avg_request_time_ms"`
	UptimeSeconds    float64       `json:"uptime_seconds"`
	CacheHitRate     float64       `json:"cache_hit_rate"`
}

// metricsCollector tracks request counters
type metricsCollector struct {
	// Atomic counters for thread-safe updates
	successCount  int64
	failureCount  int64
	cacheHits     int64
	providerCalls int64
	barsFetched   int64
	barsInserted  int64

	// Response time tracking
	totalResponseTime int64 // nanoseconds
	responseCount     int64

	startTime time.Time
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{startTime: time.Now()}
}

// recordSuccess records a completed request
func (m *metricsCollector) recordSuccess(duration time.Duration, fromCache bool) {
	atomic.AddInt64(&m.successCount, 1)
	atomic.AddInt64(&m.totalResponseTime, duration.Nanoseconds())
	atomic.AddInt64(&m.responseCount, 1)
	if fromCache {
		atomic.AddInt64(&m.cacheHits, 1)
	}
}

// recordFailure records a failed request
func (m *metricsCollector) recordFailure() {
	atomic.AddInt64(&m.failureCount, 1)
}

// recordFetch records provider calls and the bars they returned
func (m *metricsCollector) recordFetch(calls, bars int) {
	atomic.AddInt64(&m.providerCalls, int64(calls))
	atomic.AddInt64(&m.barsFetched, int64(bars))
}

// recordInserted records bars new to the store
func (m *metricsCollector) recordInserted(count int) {
	atomic.AddInt64(&m.barsInserted, int64(count))
}

// snapshot returns current metrics
func (m *metricsCollector) snapshot() *Metrics {
	successCount := atomic.LoadInt64(&m.successCount)
	failureCount := atomic.LoadInt64(&m.failureCount)
	cacheHits := atomic.LoadInt64(&m.cacheHits)
	totalResponseTime := atomic.LoadInt64(&m.totalResponseTime)
	responseCount := atomic.LoadInt64(&m.responseCount)

	total := successCount + failureCount
	var successRate, cacheHitRate float64
	if total > 0 {
		successRate = float64(successCount) / float64(total)
	}
	if successCount > 0 {
		cacheHitRate = float64(cacheHits) / float64(successCount)
	}

	var avg time.Duration
	if responseCount > 0 {
		avg = time.Duration(totalResponseTime / responseCount)
	}

	return &Metrics{
		Requests:         total,
		CacheHits:        cacheHits,
		Failures:         failureCount,
		SuccessRate:      successRate,
		ProviderCalls:    atomic.LoadInt64(&m.providerCalls),
		BarsFetched:      atomic.LoadInt64(&m.barsFetched),
		BarsInserted:     atomic.LoadInt64(&m.barsInserted),
		AvgRequestTime:   avg,
		AvgRequestTimeMS: float64(avg) / float64(time.Millisecond),
		UptimeSeconds:    time.Since(m.startTime).Seconds(),
		CacheHitRate:     cacheHitRate,
	}
}

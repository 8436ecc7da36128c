// Package scheduler keeps a watchlist of cached series fresh. Every tick it
// re-requests the trailing window of each due job through the sync
// coordinator, which only fetches what the cache is missing.
//
// The loop follows the usual ticker pattern:
// - a time.Ticker drives the scheduling loop, stopped on exit
// - a semaphore bounds the number of jobs in flight
// - jobs that find no free slot are skipped until the next tick
// - a job still running from an earlier tick is not started again
// - context cancellation and Stop both end the loop
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/johnayoung/go-price-sync/internal/config"
	"github.com/johnayoung/go-price-sync/internal/coordinator"
	"github.com/johnayoung/go-price-sync/internal/models"
)

// Syncer is the coordinator operation a refresh job runs.
type Syncer interface {
	GetSeries(ctx context.Context, symbol, start, end string, opts models.SeriesOptions) (*coordinator.SeriesResult, error)
}

// Config configures the scheduler behavior
type Config struct {
	Symbols           []string
	Intervals         []models.Interval
	Frequency         time.Duration
	LookbackDays      int
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	TickInterval      time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Intervals:         []models.Interval{models.IntervalDaily},
		Frequency:         time.Hour,
		LookbackDays:      5,
		MaxConcurrentJobs: 2,
		JobTimeout:        5 * time.Minute,
		TickInterval:      time.Minute, // Check every minute for jobs to run
	}
}

// ConfigFromRefresh builds a scheduler configuration from the refresh section.
func ConfigFromRefresh(cfg config.RefreshConfig) *Config {
	c := DefaultConfig()
	c.Symbols = cfg.Symbols
	if len(cfg.Intervals) > 0 {
		c.Intervals = c.Intervals[:0]
		for _, interval := range cfg.Intervals {
			c.Intervals = append(c.Intervals, models.Interval(interval))
		}
	}
	c.Frequency = config.Duration(cfg.Frequency, c.Frequency)
	c.JobTimeout = config.Duration(cfg.JobTimeout, c.JobTimeout)
	if cfg.LookbackDays > 0 {
		c.LookbackDays = cfg.LookbackDays
	}
	if cfg.MaxConcurrentJobs > 0 {
		c.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	}
	if c.TickInterval > c.Frequency {
		c.TickInterval = c.Frequency
	}
	return c
}

// Stats provides scheduler performance metrics
type Stats struct {
	TotalJobs     int       `json:"total_jobs"`
	RunningJobs   int       `json:"running_jobs"`
	CompletedJobs int64     `json:"completed_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	SkippedJobs   int64     `json:"skipped_jobs"`
	LastRunTime   time.Time `json:"last_run_time"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// Job refreshes the trailing window of one series.
type Job struct {
	id      string
	symbol  string
	options models.SeriesOptions

	// running is 1 while a run of the job is in flight
	running int32

	mu        sync.RWMutex
	nextRun   time.Time
	lastRun   time.Time
	lastCount int
	lastErr   error
}

// NewJob creates a job that is due immediately.
func NewJob(symbol string, interval models.Interval, nextRun time.Time) *Job {
	sym := models.NormalizeSymbol(symbol)
	return &Job{
		id:      fmt.Sprintf("%s_%s", sym, interval),
		symbol:  sym,
		options: models.SeriesOptions{Interval: interval, UseCache: true, Adjusted: true},
		nextRun: nextRun,
	}
}

// ID returns the job identifier
func (j *Job) ID() string { return j.id }

// Symbol returns the ticker symbol
func (j *Job) Symbol() string { return j.symbol }

// Interval returns the sampling interval of the refreshed series
func (j *Job) Interval() models.Interval { return j.options.Interval }

// NextRun returns the next scheduled run time
func (j *Job) NextRun() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.nextRun
}

// LastResult returns the time, bar count and error of the last run.
func (j *Job) LastResult() (time.Time, int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastRun, j.lastCount, j.lastErr
}

// IsRunning reports whether a run of the job is in flight.
func (j *Job) IsRunning() bool {
	return atomic.LoadInt32(&j.running) == 1
}

func (j *Job) tryStart() bool {
	return atomic.CompareAndSwapInt32(&j.running, 0, 1)
}

func (j *Job) finish() {
	atomic.StoreInt32(&j.running, 0)
}

func (j *Job) record(ranAt, nextRun time.Time, count int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = ranAt
	j.nextRun = nextRun
	j.lastCount = count
	j.lastErr = err
}

// Scheduler runs refresh jobs on a fixed frequency.
type Scheduler struct {
	config *Config
	syncer Syncer
	logger *slog.Logger
	now    func() time.Time

	// State management
	isRunning int32
	startTime time.Time

	// Job management
	jobs   []*Job
	jobsMu sync.RWMutex

	// Concurrency control
	jobSemaphore chan struct{}
	runningJobs  int32

	// Statistics
	completedJobs int64
	failedJobs    int64
	skippedJobs   int64
	lastRunTime   time.Time
	statsMu       sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler with one job per configured symbol and interval.
func New(cfg *Config, syncer Syncer, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		config:       cfg,
		syncer:       syncer,
		logger:       logger,
		now:          time.Now,
		jobSemaphore: make(chan struct{}, cfg.MaxConcurrentJobs),
	}

	start := s.now()
	for _, symbol := range cfg.Symbols {
		for _, interval := range cfg.Intervals {
			if err := s.AddJob(NewJob(symbol, interval, start)); err != nil {
				logger.Warn("skipping duplicate refresh job", "symbol", symbol, "interval", interval)
			}
		}
	}
	return s
}

// AddJob adds a job. Jobs are unique per symbol and interval.
func (s *Scheduler) AddJob(job *Job) error {
	if job.Symbol() == "" {
		return fmt.Errorf("job has no symbol")
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for _, existing := range s.jobs {
		if existing.ID() == job.ID() {
			return fmt.Errorf("job already exists for %s", job.ID())
		}
	}
	s.jobs = append(s.jobs, job)

	s.logger.Debug("added refresh job",
		"job_id", job.ID(),
		"next_run", job.NextRun())
	return nil
}

// RemoveJob removes the job of symbol and interval.
func (s *Scheduler) RemoveJob(symbol string, interval models.Interval) error {
	id := fmt.Sprintf("%s_%s", models.NormalizeSymbol(symbol), interval)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for i, job := range s.jobs {
		if job.ID() == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("job not found for %s", id)
}

// Jobs returns a copy of the job list
func (s *Scheduler) Jobs() []*Job {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	return jobs
}

// Start begins the scheduling loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 0, 1) {
		return fmt.Errorf("scheduler is already running")
	}

	s.logger.Info("starting refresh scheduler",
		"jobs", len(s.Jobs()),
		"frequency", s.config.Frequency,
		"tick_interval", s.config.TickInterval,
		"max_concurrent_jobs", s.config.MaxConcurrentJobs)

	s.startTime = s.now()
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.schedulingLoop(time.NewTicker(s.config.TickInterval))
	return nil
}

// Stop ends the scheduling loop and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 1, 0) {
		return fmt.Errorf("scheduler is not running")
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("refresh scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("refresh scheduler stop timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduling loop is active
func (s *Scheduler) IsRunning() bool {
	return atomic.LoadInt32(&s.isRunning) == 1
}

// GetStats returns current scheduler statistics
func (s *Scheduler) GetStats() Stats {
	s.statsMu.RLock()
	lastRun := s.lastRunTime
	s.statsMu.RUnlock()

	uptime := int64(0)
	if s.IsRunning() && !s.startTime.IsZero() {
		uptime = int64(s.now().Sub(s.startTime).Seconds())
	}

	return Stats{
		TotalJobs:     len(s.Jobs()),
		RunningJobs:   int(atomic.LoadInt32(&s.runningJobs)),
		CompletedJobs: atomic.LoadInt64(&s.completedJobs),
		FailedJobs:    atomic.LoadInt64(&s.failedJobs),
		SkippedJobs:   atomic.LoadInt64(&s.skippedJobs),
		LastRunTime:   lastRun,
		UptimeSeconds: uptime,
	}
}

// RunOnce runs every job once, waiting for all of them, and returns the
// failures joined by symbol.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []string
	)
	for _, job := range s.Jobs() {
		if !job.tryStart() {
			s.logger.Debug("refresh job already running", "job_id", job.ID())
			continue
		}
		s.jobSemaphore <- struct{}{}
		atomic.AddInt32(&s.runningJobs, 1)
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			defer job.finish()
			defer s.release()
			if err := s.executeJob(ctx, job); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", job.ID(), err))
				mu.Unlock()
			}
		}(job)
	}
	wg.Wait()

	if len(failures) > 0 {
		return fmt.Errorf("%d refresh job(s) failed:\n- %s", len(failures), strings.Join(failures, "\n- "))
	}
	return nil
}

// schedulingLoop is the main scheduling loop using time.Ticker
func (s *Scheduler) schedulingLoop(ticker *time.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	// First pass without waiting for a tick
	s.processScheduledJobs()
	for {
		select {
		case <-ticker.C:
			s.processScheduledJobs()
		case <-s.ctx.Done():
			s.logger.Debug("scheduling loop canceled")
			return
		}
	}
}

// processScheduledJobs starts every due job that finds a free slot
func (s *Scheduler) processScheduledJobs() {
	now := s.now()

	var due []*Job
	for _, job := range s.Jobs() {
		// One second of tolerance for ticker jitter
		if job.NextRun().Before(now.Add(time.Second)) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return
	}

	s.statsMu.Lock()
	s.lastRunTime = now
	s.statsMu.Unlock()

	for _, job := range due {
		if !job.tryStart() {
			s.logger.Debug("refresh job still running, not starting again", "job_id", job.ID())
			continue
		}
		select {
		case s.jobSemaphore <- struct{}{}:
			atomic.AddInt32(&s.runningJobs, 1)
			s.wg.Add(1)
			go func(job *Job) {
				defer s.wg.Done()
				defer job.finish()
				defer s.release()
				_ = s.executeJob(s.ctx, job)
			}(job)
		default:
			job.finish()
			atomic.AddInt64(&s.skippedJobs, 1)
			s.logger.Warn("no free slot for refresh job",
				"job_id", job.ID(),
				"max_concurrent", s.config.MaxConcurrentJobs)
		}
	}
}

func (s *Scheduler) release() {
	<-s.jobSemaphore
	atomic.AddInt32(&s.runningJobs, -1)
}

// executeJob syncs the trailing window of one job and reschedules it.
func (s *Scheduler) executeJob(ctx context.Context, job *Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	startedAt := s.now()
	start, end := s.window(startedAt)
	res, err := s.syncer.GetSeries(ctx, job.Symbol(), start, end, job.options)

	count := 0
	if res != nil {
		count = res.Count
	}
	job.record(startedAt, startedAt.Add(s.config.Frequency), count, err)

	log := s.logger.With("job_id", job.ID(), "start", start, "end", end, "duration", s.now().Sub(startedAt))
	if err != nil {
		atomic.AddInt64(&s.failedJobs, 1)
		log.Error("refresh job failed", "error", err)
		return err
	}

	atomic.AddInt64(&s.completedJobs, 1)
	log.Info("refresh job completed", "bars", count, "from_cache", res.FromCache)
	return nil
}

// window returns the trailing date range ending today.
func (s *Scheduler) window(now time.Time) (string, string) {
	end := models.TruncateDay(now)
	start := end.AddDate(0, 0, -s.config.LookbackDays)
	return start.Format(models.DateLayout), end.Format(models.DateLayout)
}

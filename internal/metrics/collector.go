package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/rangefetch/internal/resource"
)

// maxHistory bounds the number of retained DataPoints.
const maxHistory = 3600

// Collector aggregates outcomes from all workers. It implements runner.Observer.
type Collector struct {
	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	fetched  int64
	skipped  int64
	failed   int64
	bytes    int64
	failures map[resource.FailureKind]int64

	// Latency is tracked only for identifiers that reached the network or the
	// store write, i.e. fetched and failed outcomes.
	attempts   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration

	start   time.Time
	history []DataPoint
	last    DataPoint
}

// Stats represents aggregated metrics.
type Stats struct {
	Processed   int64         `json:"processed" yaml:"processed"`
	Fetched     int64         `json:"fetched" yaml:"fetched"`
	Skipped     int64         `json:"skipped" yaml:"skipped"`
	Failed      int64         `json:"failed" yaml:"failed"`
	Bytes       int64         `json:"bytes" yaml:"bytes"`
	MinLatency  time.Duration `json:"-" yaml:"-"`
	MaxLatency  time.Duration `json:"-" yaml:"-"`
	MeanLatency time.Duration `json:"-" yaml:"-"`
	P50Latency  time.Duration `json:"-" yaml:"-"`
	P90Latency  time.Duration `json:"-" yaml:"-"`
	P99Latency  time.Duration `json:"-" yaml:"-"`
	Duration    time.Duration `json:"-" yaml:"-"`
	ItemsPerSec float64       `json:"items_per_sec" yaml:"items_per_sec"`
	BytesPerSec float64       `json:"bytes_per_sec" yaml:"bytes_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64          `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64          `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64          `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64          `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64          `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64          `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64          `json:"duration_ms" yaml:"duration_ms"`
	Failures      map[string]int64 `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// DataPoint is one sample of the collector's counters over time.
type DataPoint struct {
	ElapsedMs    float64 `json:"elapsed_ms"`
	Processed    int64   `json:"processed"`
	Fetched      int64   `json:"fetched"`
	Skipped      int64   `json:"skipped"`
	Failed       int64   `json:"failed"`
	Bytes        int64   `json:"bytes"`
	ItemsPerSec  float64 `json:"items_per_sec"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 10 minutes with 3 significant figures.
	return &Collector{
		hist:     hdrhistogram.New(1, 600_000_000, 3),
		failures: make(map[resource.FailureKind]int64),
		start:    time.Now(),
	}
}

// Start resets the clock used for rates and history.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	c.history = nil
	c.last = DataPoint{}
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Observe records one outcome.
func (c *Collector) Observe(o resource.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch o.Kind {
	case resource.KindSkipped:
		c.skipped++
		return
	case resource.KindSuccess:
		c.fetched++
		c.bytes += o.Bytes
	case resource.KindFailure:
		c.failed++
		c.failures[o.Failure]++
	}

	c.attempts++
	if o.Latency > 0 {
		us := o.Latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += o.Latency
	if c.minLatency == 0 || o.Latency < c.minLatency {
		c.minLatency = o.Latency
	}
	if o.Latency > c.maxLatency {
		c.maxLatency = o.Latency
	}
}

// Stats computes aggregated statistics over elapsed wall-clock time.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked(elapsed)
}

func (c *Collector) statsLocked(elapsed time.Duration) Stats {
	stats := Stats{
		Processed:  c.fetched + c.skipped + c.failed,
		Fetched:    c.fetched,
		Skipped:    c.skipped,
		Failed:     c.failed,
		Bytes:      c.bytes,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if c.attempts > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / c.attempts)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = millis(stats.MinLatency)
	stats.MaxLatencyMs = millis(stats.MaxLatency)
	stats.MeanLatencyMs = millis(stats.MeanLatency)
	stats.P50LatencyMs = millis(stats.P50Latency)
	stats.P90LatencyMs = millis(stats.P90Latency)
	stats.P99LatencyMs = millis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = millis(elapsed)
	if elapsed > 0 {
		stats.ItemsPerSec = float64(stats.Processed) / elapsed.Seconds()
		stats.BytesPerSec = float64(stats.Bytes) / elapsed.Seconds()
	}

	if len(c.failures) > 0 {
		stats.Failures = make(map[string]int64, len(c.failures))
		for k, v := range c.failures {
			stats.Failures[string(k)] = v
		}
	}
	return stats
}

// Snapshot appends a DataPoint for the current moment to the history.
// The throughput of a DataPoint covers the interval since the previous one.
func (c *Collector) Snapshot() DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.start)
	stats := c.statsLocked(elapsed)
	dp := DataPoint{
		ElapsedMs:    millis(elapsed),
		Processed:    stats.Processed,
		Fetched:      stats.Fetched,
		Skipped:      stats.Skipped,
		Failed:       stats.Failed,
		Bytes:        stats.Bytes,
		P50LatencyMs: stats.P50LatencyMs,
		P99LatencyMs: stats.P99LatencyMs,
	}
	if window := dp.ElapsedMs - c.last.ElapsedMs; window > 0 {
		dp.ItemsPerSec = float64(dp.Processed-c.last.Processed) / (window / 1000)
	}

	c.history = append(c.history, dp)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
	c.last = dp
	return dp
}

// SampleHistory takes a Snapshot every interval until the returned stop
// function is called. stop waits for the sampler to exit and is safe to call
// more than once.
func (c *Collector) SampleHistory(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Snapshot()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}

// History returns a copy of the recorded DataPoints.
func (c *Collector) History() []DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DataPoint, len(c.history))
	copy(out, c.history)
	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

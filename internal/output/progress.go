package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/rangefetch/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	total     int64
	interval  time.Duration
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. total is the size of the range and may be zero.
func NewProgressReporter(collector *metrics.Collector, total int64, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		collector: collector,
		total:     total,
		interval:  interval,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer, p.line())
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.collector.Snapshot()
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.collector.Stats(p.collector.Elapsed())
	line := fmt.Sprintf("\rProcessed: %d", stats.Processed)
	if p.total > 0 {
		line += fmt.Sprintf("/%d (%.0f%%)", p.total, float64(stats.Processed)/float64(p.total)*100)
	}
	line += fmt.Sprintf(" | Fetched: %d | Skipped: %d | Failed: %d | Rate: %.1f/s",
		stats.Fetched, stats.Skipped, stats.Failed, stats.ItemsPerSec)
	if stats.Fetched+stats.Failed > 0 {
		line += fmt.Sprintf(" | P99 %.1fms", stats.P99LatencyMs)
	}
	return line
}

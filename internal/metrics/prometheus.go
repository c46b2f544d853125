package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torosent/rangefetch/internal/resource"
)

// Prometheus holds the counters exported for a run. It implements runner.Observer.
type Prometheus struct {
	Outcomes     *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	FetchedBytes prometheus.Counter
	FetchLatency prometheus.Histogram

	RunDuration  prometheus.Gauge
	RunTotal     prometheus.Gauge
	RunFinished  prometheus.Gauge
	RunCompleted prometheus.Gauge
}

// NewPrometheus registers all instruments with reg. Use a private registry
// per run so the textfile export contains only rangefetch series.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rangefetch_outcomes_total",
			Help: "Identifiers processed, by outcome (fetched, skipped, failed).",
		}, []string{"outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rangefetch_failures_total",
			Help: "Failed identifiers, by failure kind (transport, rejected, store).",
		}, []string{"kind"}),
		FetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rangefetch_fetched_bytes_total",
			Help: "Bytes fetched and persisted.",
		}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rangefetch_fetch_duration_seconds",
			Help:    "Time from dequeue to outcome for identifiers that were not skipped.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rangefetch_last_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		}),
		RunTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rangefetch_last_run_identifiers",
			Help: "Number of identifiers in the last run's range.",
		}),
		RunFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rangefetch_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		RunCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rangefetch_last_run_completed",
			Help: "1 if the last run processed every identifier, 0 if it was interrupted.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.Outcomes, p.Failures, p.FetchedBytes, p.FetchLatency,
		p.RunDuration, p.RunTotal, p.RunFinished, p.RunCompleted,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	// Pre-create label values so a clean run still exports zero-valued series.
	for _, k := range []resource.Kind{resource.KindSuccess, resource.KindSkipped, resource.KindFailure} {
		p.Outcomes.WithLabelValues(k.String())
	}
	for _, k := range []resource.FailureKind{resource.FailureTransport, resource.FailureRejected, resource.FailureStore} {
		p.Failures.WithLabelValues(string(k))
	}
	return p, nil
}

// Observe records one outcome.
func (p *Prometheus) Observe(o resource.Outcome) {
	p.Outcomes.WithLabelValues(o.Kind.String()).Inc()
	switch o.Kind {
	case resource.KindSuccess:
		p.FetchedBytes.Add(float64(o.Bytes))
		p.FetchLatency.Observe(o.Latency.Seconds())
	case resource.KindFailure:
		p.Failures.WithLabelValues(string(o.Failure)).Inc()
		p.FetchLatency.Observe(o.Latency.Seconds())
	}
}

// ObserveRun records run-level gauges once the run has finished.
func (p *Prometheus) ObserveRun(total int64, duration time.Duration, completed bool, finished time.Time) {
	p.RunTotal.Set(float64(total))
	p.RunDuration.Set(duration.Seconds())
	p.RunFinished.Set(float64(finished.Unix()))
	if completed {
		p.RunCompleted.Set(1)
	} else {
		p.RunCompleted.Set(0)
	}
}

// WriteTextfile writes every metric gathered by g to path in the Prometheus
// text exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Package metrics aggregates fetch outcomes for reporting.
//
// [Collector] keeps in-process statistics: outcome counts, fetched bytes, a
// failure breakdown by kind and an HDR histogram of per-identifier latency.
// It also samples its counters into a bounded history used by the HTML
// report and the live dashboard.
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	collector.Observe(outcome)
//	stats := collector.Stats(collector.Elapsed())
//
// [Prometheus] exports the same outcomes as Prometheus counters. Because a
// run is a batch job rather than a server, the registry is written once at
// the end with [WriteTextfile] for node_exporter's textfile collector.
//
// Both types implement the runner's Observer interface and are safe for
// concurrent use.
package metrics

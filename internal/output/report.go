package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/torosent/rangefetch/internal/metrics"
	"github.com/torosent/rangefetch/internal/resource"
)

// RunInfo describes the run a report was produced for.
type RunInfo struct {
	Range       resource.Range `json:"range" yaml:"range"`
	Workers     int            `json:"workers" yaml:"workers"`
	URLTemplate string         `json:"url_template" yaml:"url_template"`
	Store       string         `json:"store" yaml:"store"`
	Total       int64          `json:"total" yaml:"total"`
	Complete    bool           `json:"complete" yaml:"complete"`
}

// Report is the machine-readable summary emitted by --json-output and --yaml-output.
type Report struct {
	Run   RunInfo       `json:"run" yaml:"run"`
	Stats metrics.Stats `json:"stats" yaml:"stats"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, run RunInfo, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Fetch Results ---")
	fmt.Fprintf(w, "Range:             %s (%d identifiers)\n", run.Range, run.Total)
	fmt.Fprintf(w, "Workers:           %d\n", run.Workers)
	fmt.Fprintf(w, "Fetched:           %d\n", stats.Fetched)
	fmt.Fprintf(w, "Skipped:           %d\n", stats.Skipped)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failed)
	if !run.Complete {
		fmt.Fprintf(w, "Unprocessed:       %d (interrupted)\n", run.Total-stats.Processed)
	}
	fmt.Fprintf(w, "Bytes:             %d\n", stats.Bytes)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Identifiers/sec:   %.2f\n", stats.ItemsPerSec)

	if stats.Fetched+stats.Failed > 0 {
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
		fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
		fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
		fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
		fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
		fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	}

	if rows := stats.FailureKinds(); len(rows) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Label, row.Count)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, run RunInfo, stats metrics.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Report{Run: run, Stats: stats})
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, run RunInfo, stats metrics.Stats) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Report{Run: run, Stats: stats}); err != nil {
		return err
	}
	return enc.Close()
}

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/rangefetch/internal/config"
	"github.com/torosent/rangefetch/internal/metrics"
	"github.com/torosent/rangefetch/internal/output"
	"github.com/torosent/rangefetch/internal/resource"
)

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero workers", []string{"--workers", "0"}, "workers"},
		{"negative workers", []string{"--workers=-3"}, "workers"},
		{"bad url template", []string{"--url-template", "https://example.com/book.txt"}, "url_template"},
		{"escaping key", []string{"--key-template", "../{id}"}, "key_template"},
		{"range too large", []string{"--end", "9223372036854775807"}, "spans more than"},
		{"unknown flag", []string{"--concurrency", "3"}, "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			if err == nil {
				t.Fatal("run() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run() error = %q, want it to mention %q", err, tt.want)
			}
			if strings.Contains(stdout.String(), completionMessage) {
				t.Error("completion reported for a configuration error")
			}
		})
	}
}

func TestRunValidationErrorType(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--workers", "0"}, &stdout, &stderr)
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("run() error = %T, want config.ValidationError", err)
	}
}

func TestWriteReportsHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	cfg := config.Default()
	cfg.HTMLOutput = path

	info := output.RunInfo{Range: resource.Range{Start: 1, End: 2}, Workers: 1, Total: 2, Complete: true}
	stats := metrics.Stats{Processed: 2, Fetched: 2}

	var stdout bytes.Buffer
	if err := writeReports(cfg, info, stats, nil, &stdout); err != nil {
		t.Fatalf("writeReports() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "--- Fetch Results ---") {
		t.Errorf("text report missing from stdout: %q", stdout.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(data), "rangefetch Report") {
		t.Error("html report missing title")
	}
}

func TestWriteReportsJSONOnly(t *testing.T) {
	cfg := config.Default()
	cfg.JSONOutput = true

	var stdout bytes.Buffer
	if err := writeReports(cfg, output.RunInfo{}, metrics.Stats{}, nil, &stdout); err != nil {
		t.Fatalf("writeReports() error = %v", err)
	}
	if strings.Contains(stdout.String(), "Fetch Results") {
		t.Error("json mode should not print the text report")
	}
	if !strings.HasPrefix(strings.TrimSpace(stdout.String()), "{") {
		t.Errorf("stdout = %q, want JSON", stdout.String())
	}
}

func TestHistorySamplerFillsHTMLChart(t *testing.T) {
	prev := historyInterval
	historyInterval = 2 * time.Millisecond
	t.Cleanup(func() { historyInterval = prev })

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		sampled bool
	}{
		{"html only", func(c *config.Config) { c.HTMLOutput = "report.html" }, true},
		{"no html", func(c *config.Config) {}, false},
		{"html with progress", func(c *config.Config) {
			c.HTMLOutput = "report.html"
			c.Progress = true
		}, false},
		{"html with dashboard", func(c *config.Config) {
			c.HTMLOutput = "report.html"
			c.Dashboard = true
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			collector := metrics.NewCollector()
			collector.Start()

			stop := startHistorySampler(cfg, collector)
			time.Sleep(20 * time.Millisecond)
			stop()

			n := len(collector.History())
			if tt.sampled && n < 2 {
				t.Errorf("History() len = %d, want at least 2", n)
			}
			if !tt.sampled && n != 0 {
				t.Errorf("History() len = %d, want 0", n)
			}
		})
	}
}

package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"
	"github.com/tidwall/gjson"

	"github.com/torosent/rangefetch/internal/store"
)

// origin serves /cache/epub/{id}/pg{id}.txt and fails the ids in fail.
type origin struct {
	*httptest.Server
	hits atomic.Int64

	mu   sync.Mutex
	fail map[int]bool
	seen map[int]int
}

func newOrigin(t *testing.T, fail ...int) *origin {
	t.Helper()
	o := &origin{fail: map[int]bool{}, seen: map[int]int{}}
	for _, id := range fail {
		o.fail[id] = true
	}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/cache/epub/%d/", &id); err != nil {
			http.NotFound(w, r)
			return
		}
		o.mu.Lock()
		o.seen[id]++
		failed := o.fail[id]
		o.mu.Unlock()
		if failed {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "book %d", id)
	}))
	t.Cleanup(o.Close)
	return o
}

func (o *origin) template() string {
	return o.URL + "/cache/epub/{id}/pg{id}.txt"
}

func baseArgs(o *origin, dir string, extra ...string) []string {
	return append([]string{"--url-template", o.template(), "--store", dir}, extra...)
}

func TestRunFetchesRangeWithOneFailure(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t, 7)
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	err := run(baseArgs(o, dir, "--start", "1", "--end", "10", "--workers", "3"), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}

	for id := 1; id <= 10; id++ {
		path := filepath.Join(dir, fmt.Sprintf("book_%d.txt", id))
		data, err := os.ReadFile(path)
		if id == 7 {
			if err == nil {
				t.Errorf("book_7.txt should not exist")
			}
			continue
		}
		if err != nil {
			t.Errorf("book_%d.txt missing: %v", id, err)
			continue
		}
		if string(data) != fmt.Sprintf("book %d", id) {
			t.Errorf("book_%d.txt = %q", id, data)
		}
	}

	out := stdout.String()
	if !strings.Contains(out, "Fetched:           9") || !strings.Contains(out, "Failed:            1") {
		t.Errorf("summary counts wrong:\n%s", out)
	}
	if !strings.HasSuffix(out, completionMessage+"\n") {
		t.Errorf("stdout should end with %q:\n%s", completionMessage, out)
	}
	// Failures are silent unless --log-errors is set.
	if strings.Contains(stderr.String(), "fetch failed") {
		t.Errorf("unexpected failure log: %s", stderr.String())
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, n := range o.seen {
		if n != 1 {
			t.Errorf("id %d requested %d times, want exactly once", id, n)
		}
	}
}

func TestRunRestartSkipsStoredResources(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t)
	dir := t.TempDir()
	args := baseArgs(o, dir, "--end", "20", "--workers", "4")

	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	if got := o.hits.Load(); got != 20 {
		t.Fatalf("first run hits = %d, want 20", got)
	}

	stdout.Reset()
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if got := o.hits.Load(); got != 20 {
		t.Errorf("second run fetched again: hits = %d, want 20", got)
	}
	if !strings.Contains(stdout.String(), "Skipped:           20") {
		t.Errorf("second run summary:\n%s", stdout.String())
	}
}

func TestRunEmptyRange(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t)

	var stdout, stderr bytes.Buffer
	if err := run(baseArgs(o, t.TempDir(), "--start", "1", "--end", "0"), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if o.hits.Load() != 0 {
		t.Errorf("empty range made %d requests", o.hits.Load())
	}
	if !strings.Contains(stdout.String(), completionMessage) {
		t.Error("empty range should still report completion")
	}
}

func TestRunZeroWorkersMakesNoRequests(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t)
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run(baseArgs(o, dir, "--workers", "0"), &stdout, &stderr); err == nil {
		t.Fatal("run() expected error for zero workers")
	}
	if o.hits.Load() != 0 {
		t.Errorf("rejected run made %d requests", o.hits.Load())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("rejected run touched the store: %d entries", len(entries))
	}
}

func TestRunJSONOutput(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t, 2)

	var stdout, stderr bytes.Buffer
	if err := run(baseArgs(o, t.TempDir(), "--end", "4", "--json-output"), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	out := stdout.String()
	if !gjson.Valid(out) {
		t.Fatalf("stdout is not JSON: %s", out)
	}
	if got := gjson.Get(out, "stats.fetched").Int(); got != 3 {
		t.Errorf("stats.fetched = %d, want 3", got)
	}
	if got := gjson.Get(out, "stats.failures.rejected").Int(); got != 1 {
		t.Errorf("stats.failures.rejected = %d, want 1", got)
	}
	if !gjson.Get(out, "run.complete").Bool() {
		t.Error("run.complete = false, want true")
	}
	if !strings.Contains(stderr.String(), completionMessage) {
		t.Errorf("completion message should go to stderr in json mode: %q", stderr.String())
	}
}

func TestRunLogErrors(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t, 3)

	var stdout, stderr bytes.Buffer
	if err := run(baseArgs(o, t.TempDir(), "--end", "5", "--log-errors", "--log-format", "json"), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var found bool
	for _, line := range strings.Split(stderr.String(), "\n") {
		if gjson.Get(line, "msg").String() != "fetch failed" {
			continue
		}
		found = true
		if gjson.Get(line, "id").Int() != 3 {
			t.Errorf("failure log id = %s, want 3", gjson.Get(line, "id").Raw)
		}
		if gjson.Get(line, "failure").String() != "rejected" {
			t.Errorf("failure log kind = %q", gjson.Get(line, "failure").String())
		}
	}
	if !found {
		t.Errorf("no failure log line in stderr: %s", stderr.String())
	}
}

func TestRunWritesTimingsAndMetrics(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t, 1)
	dir := t.TempDir()
	timings := filepath.Join(dir, "data.csv")
	prom := filepath.Join(dir, "rangefetch.prom")
	html := filepath.Join(dir, "report.html")

	args := baseArgs(o, filepath.Join(dir, "books"),
		"--end", "3",
		"--timings-file", timings,
		"--label", "go-rangefetch",
		"--metrics-file", prom,
		"--html-output", html,
	)
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	f, err := os.Open(timings)
	if err != nil {
		t.Fatalf("open timings: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read timings: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("timings rows = %d, want header + 1", len(rows))
	}
	row := rows[1]
	if row[0] != "go-rangefetch" || !strings.HasPrefix(row[1], "0m") {
		t.Errorf("timing row = %v", row)
	}
	if strings.Join(row[3:], ",") != "1,3,5,2,0,1" {
		t.Errorf("timing counts = %v", row[3:])
	}

	metricsText, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{
		`rangefetch_outcomes_total{outcome="fetched"} 2`,
		`rangefetch_failures_total{kind="rejected"} 1`,
		`rangefetch_last_run_completed 1`,
		`rangefetch_last_run_identifiers 3`,
	} {
		if !strings.Contains(string(metricsText), want) {
			t.Errorf("metrics file missing %q", want)
		}
	}

	if _, err := os.Stat(html); err != nil {
		t.Errorf("html report not written: %v", err)
	}
}

func TestRunLockedStore(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t)
	dir := t.TempDir()

	lock := flock.New(filepath.Join(dir, store.LockFile))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock() = %v, %v", locked, err)
	}
	defer lock.Unlock()

	var stdout, stderr bytes.Buffer
	err = run(baseArgs(o, dir, "--end", "3"), &stdout, &stderr)
	if err == nil {
		t.Fatal("run() expected error while the store is locked")
	}
	if !strings.Contains(err.Error(), "locked") {
		t.Errorf("run() error = %v, want lock error", err)
	}
	if o.hits.Load() != 0 {
		t.Errorf("locked run made %d requests", o.hits.Load())
	}
}

func TestRunBlobStore(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	o := newOrigin(t)

	var stdout, stderr bytes.Buffer
	if err := run(baseArgs(o, "mem://", "--end", "5", "--workers", "2"), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := o.hits.Load(); got != 5 {
		t.Errorf("hits = %d, want 5", got)
	}
	if !strings.Contains(stdout.String(), "Fetched:           5") {
		t.Errorf("summary:\n%s", stdout.String())
	}
}

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
)

// DefaultLabel is the script column written when no label is configured.
const DefaultLabel = "rangefetch"

// TimingsHeader is the first row of a timings file.
var TimingsHeader = []string{"script", "time", "run_id", "start", "end", "workers", "fetched", "skipped", "failed"}

// Timing is one row of a timings file.
type Timing struct {
	Label   string
	Elapsed time.Duration
	RunID   ulid.ULID
	Start   int64
	End     int64
	Workers int
	Fetched int64
	Skipped int64
	Failed  int64
}

// NewRunID returns a sortable identifier for a run.
func NewRunID() ulid.ULID {
	return ulid.Make()
}

// FormatElapsed renders d as minutes and seconds, e.g. 0m1.234s.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := d / time.Minute
	s := (d - m*time.Minute).Seconds()
	return fmt.Sprintf("%dm%.3fs", int64(m), s)
}

func (t Timing) record() []string {
	label := t.Label
	if label == "" {
		label = DefaultLabel
	}
	return []string{
		label,
		FormatElapsed(t.Elapsed),
		t.RunID.String(),
		strconv.FormatInt(t.Start, 10),
		strconv.FormatInt(t.End, 10),
		strconv.Itoa(t.Workers),
		strconv.FormatInt(t.Fetched, 10),
		strconv.FormatInt(t.Skipped, 10),
		strconv.FormatInt(t.Failed, 10),
	}
}

// AppendTiming appends t to the CSV file at path, writing the header first
// when the file is new or empty. Concurrent runs sharing a file are
// serialized with a lock file next to it.
func AppendTiming(path string, t Timing) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock timings file: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open timings file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat timings file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(TimingsHeader); err != nil {
			return fmt.Errorf("write timings header: %w", err)
		}
	}
	if err := w.Write(t.record()); err != nil {
		return fmt.Errorf("write timing: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write timing: %w", err)
	}
	return f.Close()
}

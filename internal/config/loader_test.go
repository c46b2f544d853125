package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int64
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{uint32(7), 7},
		{nil, 0},
		{" ", 0},
	}

	for _, tt := range tests {
		got, err := asInt64(tt.input)
		if err != nil {
			t.Errorf("asInt64(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt64(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}

	for _, bad := range []interface{}{"abc", 1.5, []int{1}} {
		if _, err := asInt64(bad); err == nil {
			t.Errorf("asInt64(%v) expected error", bad)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{1.5, 1500 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Default()
	settings := map[string]interface{}{
		"start":        10,
		"end":          "20",
		"workers":      3,
		"url_template": "http://origin.local/{id}.txt",
		"key-template": "books/{id}.txt",
		"timeout":      "5s",
		"log_errors":   true,
		"tracing": map[string]interface{}{
			"endpoint":    "localhost:4318",
			"protocol":    "http",
			"sample_rate": 0.25,
			"propagate":   false,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Start != 10 || cfg.End != 20 {
		t.Errorf("range = [%d,%d], want [10,20]", cfg.Start, cfg.End)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.URLTemplate != "http://origin.local/{id}.txt" {
		t.Errorf("URLTemplate = %q", cfg.URLTemplate)
	}
	if cfg.KeyTemplate != "books/{id}.txt" {
		t.Errorf("KeyTemplate = %q", cfg.KeyTemplate)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if !cfg.LogErrors {
		t.Error("LogErrors = false, want true")
	}
	if cfg.Tracing.Endpoint != "localhost:4318" || cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing.SampleRate = %v, want 0.25", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Tracing.Propagate = %v, want explicit false", cfg.Tracing.Propagate)
	}
	// Untouched settings keep their defaults.
	if cfg.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("MaxBodyBytes = %d, want default", cfg.MaxBodyBytes)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	tests := []map[string]interface{}{
		{"workers": "many"},
		{"timeout": "soon"},
		{"log_errors": "perhaps"},
		{"tracing": "on"},
	}
	for _, settings := range tests {
		if err := applyConfigSettings(Default(), settings); err == nil {
			t.Errorf("applyConfigSettings(%v) expected error", settings)
		}
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()
	cfg.Workers = 9

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--start=5",
		"-e", "8",
		"-w", "2",
		"--store=mem://books",
		"--tracing-propagate",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Start != 5 || cfg.End != 8 {
		t.Errorf("range = [%d,%d], want [5,8]", cfg.Start, cfg.End)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if cfg.Store != "mem://books" {
		t.Errorf("Store = %q, want mem://books", cfg.Store)
	}
	if cfg.Tracing.Propagate == nil || !*cfg.Tracing.Propagate {
		t.Error("Tracing.Propagate not set by flag")
	}
	// Unchanged flags do not reset file values.
	if cfg.URLTemplate != DefaultURLTemplate {
		t.Errorf("URLTemplate = %q, want default", cfg.URLTemplate)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--url-template=http://127.0.0.1:9000/{id}",
		"--workers=2",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.URLTemplate != "http://127.0.0.1:9000/{id}" {
		t.Errorf("URLTemplate = %q", cfg.URLTemplate)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
}

func TestLoader_LoadRejectsPositionalArgs(t *testing.T) {
	if _, err := NewLoader().Load([]string{"--workers=2", "extra"}); err == nil {
		t.Fatal("Load() expected error for positional argument")
	}
}

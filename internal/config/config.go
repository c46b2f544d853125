package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/rangefetch/internal/logging"
	"github.com/torosent/rangefetch/internal/resource"
	"github.com/torosent/rangefetch/internal/store"
)

const (
	DefaultStart   = 1
	DefaultEnd     = 100
	DefaultWorkers = 5
	DefaultTimeout = 30 * time.Second

	DefaultURLTemplate  = "https://www.gutenberg.org/cache/epub/{id}/pg{id}.txt"
	DefaultMaxBodyBytes = 64 << 20
)

type Config struct {
	Start        int64         `mapstructure:"start"`
	End          int64         `mapstructure:"end"`
	Workers      int           `mapstructure:"workers"`
	URLTemplate  string        `mapstructure:"url_template"`
	KeyTemplate  string        `mapstructure:"key_template"`
	Store        string        `mapstructure:"store"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`
	LogErrors    bool          `mapstructure:"log_errors"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	JSONOutput   bool          `mapstructure:"json_output"`
	YAMLOutput   bool          `mapstructure:"yaml_output"`
	HTMLOutput   string        `mapstructure:"html_output"`
	Dashboard    bool          `mapstructure:"dashboard"`
	Progress     bool          `mapstructure:"progress"`
	TimingsFile  string        `mapstructure:"timings_file"`
	Label        string        `mapstructure:"label"`
	MetricsFile  string        `mapstructure:"metrics_file"`
	Tracing      TracingConfig `mapstructure:"tracing"`
	ConfigFile   string        `mapstructure:"-"`
}

// TracingConfig configures OTLP span export for fetch requests.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	// Propagate overrides whether traceparent headers are sent. Nil follows Enabled.
	Propagate *bool `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, either explicitly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Range returns the identifier range to process.
func (c Config) Range() resource.Range {
	return resource.Range{Start: resource.ID(c.Start), End: resource.ID(c.End)}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Workers < 1 {
		issues = append(issues, "workers must be at least 1")
	}
	if c.Start < 1 {
		issues = append(issues, "start must be at least 1")
	}
	if c.End < 0 {
		issues = append(issues, "end must be non-negative")
	}
	if rng := c.Range(); rng.TooLarge() {
		issues = append(issues, fmt.Sprintf("range %s spans more than %d identifiers", rng, resource.MaxRangeLen))
	}
	if err := resource.Template(c.URLTemplate).ValidateURL(); err != nil {
		issues = append(issues, fmt.Sprintf("url_template: %v", err))
	}
	if c.KeyTemplate != "" {
		if err := store.ValidateKeyTemplate(resource.Template(c.KeyTemplate)); err != nil {
			issues = append(issues, fmt.Sprintf("key_template: %v", err))
		}
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	if c.MaxBodyBytes < 0 {
		issues = append(issues, "max_body_bytes must be non-negative")
	}

	modes := 0
	for _, on := range []bool{c.JSONOutput, c.YAMLOutput, c.Dashboard} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		issues = append(issues, "json_output, yaml_output and dashboard are mutually exclusive")
	}
	if c.Dashboard && c.Progress {
		issues = append(issues, "progress cannot be combined with dashboard")
	}

	if c.Label != "" && c.TimingsFile == "" {
		issues = append(issues, "label requires timings_file")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("log_level: %v", err))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be console or json, got %q", c.LogFormat))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", c.Tracing.Protocol))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rangefetch",
		Short:         "Fetch a range of numbered resources into a store with a fixed worker pool",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Range and pool
	flags.Int64P("start", "s", DefaultStart, "First identifier to fetch (inclusive)")
	flags.Int64P("end", "e", DefaultEnd, "Last identifier to fetch (inclusive)")
	flags.IntP("workers", "w", DefaultWorkers, "Number of concurrent workers")

	// Fetching
	flags.String("url-template", DefaultURLTemplate, "Resource URL; {id} is replaced with the identifier")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout (0 disables)")
	flags.Int64("max-body-bytes", DefaultMaxBodyBytes, "Maximum response body size in bytes")
	flags.String("user-agent", "", "User-Agent header sent with each request")

	// Storage
	flags.String("store", ".", "Output directory or bucket URL (file://, s3://, gs://, mem://)")
	flags.String("key-template", "", "Storage key; {id} is replaced with the identifier (default book_{id}.txt)")

	// Logging
	flags.Bool("log-errors", false, "Log each failed identifier to stderr")
	flags.String("log-level", "", "Log level: debug, info, warn or error (default warn)")
	flags.String("log-format", "console", "Log format: console or json")

	// Output
	flags.Bool("json-output", false, "Emit the summary as JSON")
	flags.Bool("yaml-output", false, "Emit the summary as YAML")
	flags.String("html-output", "", "Write an HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("progress", false, "Print a periodic progress line to stderr")
	flags.String("timings-file", "", "Append a CSV timing row for this run to the file")
	flags.String("label", "", "Script label recorded in the timings file (default rangefetch)")
	flags.String("metrics-file", "", "Write Prometheus metrics in text format to the file after the run")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported on spans (default rangefetch)")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of fetches to trace, 0.0 to 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Send traceparent headers with each request (default on when tracing)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	if cmd.Short != "" {
		fmt.Fprintf(out, "%s\n\n", cmd.Short)
	}
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("start") {
		val, err := fs.GetInt64("start")
		if err != nil {
			return err
		}
		cfg.Start = val
	}
	if fs.Changed("end") {
		val, err := fs.GetInt64("end")
		if err != nil {
			return err
		}
		cfg.End = val
	}
	if fs.Changed("workers") {
		val, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = val
	}
	if fs.Changed("url-template") {
		val, err := fs.GetString("url-template")
		if err != nil {
			return err
		}
		cfg.URLTemplate = strings.TrimSpace(val)
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("max-body-bytes") {
		val, err := fs.GetInt64("max-body-bytes")
		if err != nil {
			return err
		}
		cfg.MaxBodyBytes = val
	}
	if fs.Changed("user-agent") {
		val, err := fs.GetString("user-agent")
		if err != nil {
			return err
		}
		cfg.UserAgent = val
	}
	if fs.Changed("store") {
		val, err := fs.GetString("store")
		if err != nil {
			return err
		}
		cfg.Store = strings.TrimSpace(val)
	}
	if fs.Changed("key-template") {
		val, err := fs.GetString("key-template")
		if err != nil {
			return err
		}
		cfg.KeyTemplate = strings.TrimSpace(val)
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = val
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.LogFormat = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("yaml-output") {
		val, err := fs.GetBool("yaml-output")
		if err != nil {
			return err
		}
		cfg.YAMLOutput = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("timings-file") {
		val, err := fs.GetString("timings-file")
		if err != nil {
			return err
		}
		cfg.TimingsFile = val
	}
	if fs.Changed("label") {
		val, err := fs.GetString("label")
		if err != nil {
			return err
		}
		cfg.Label = val
	}
	if fs.Changed("metrics-file") {
		val, err := fs.GetString("metrics-file")
		if err != nil {
			return err
		}
		cfg.MetricsFile = val
	}
	return applyTracingFlagOverrides(&cfg.Tracing, fs)
}

func applyTracingFlagOverrides(tc *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		tc.Protocol = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		tc.ServiceName = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		tc.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		tc.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		tc.Propagate = &val
	}
	return nil
}

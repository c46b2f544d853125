// Package tracing sets up OpenTelemetry export and wraps each resource fetch in a client span.
//
// A run is described by [Run]. Its range, pool size and store become
// resource attributes of every exported span, and [Provider.StartRun] opens
// the parent span that all fetch spans of the run hang off.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	otelresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/rangefetch/internal/config"
	"github.com/torosent/rangefetch/internal/resource"
)

const (
	instrumentationName = "github.com/torosent/rangefetch"
	defaultServiceName  = "rangefetch"
)

// Run describes the fetch run being traced.
type Run struct {
	ID      string // run identifier, exported as service.instance.id
	Range   resource.Range
	Workers int
	Store   string
}

// Attributes returns the run parameters as span attributes.
func (r Run) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrRangeStart.Int64(int64(r.Range.Start)),
		AttrRangeEnd.Int64(int64(r.Range.End)),
		AttrRangeSize.Int(r.Range.Len()),
		AttrWorkers.Int(r.Workers),
	}
	if r.Store != "" {
		attrs = append(attrs, AttrStore.String(r.Store))
	}
	return attrs
}

// Provider owns the tracer provider for one run.
type Provider struct {
	tp        *sdktrace.TracerProvider
	res       *otelresource.Resource
	tracer    trace.Tracer
	run       Run
	propagate bool
}

// Init builds a Provider for run. Tracing stays a no-op unless an endpoint
// is configured, either in cfg or through OTEL_EXPORTER_OTLP_ENDPOINT.
func Init(ctx context.Context, cfg config.TracingConfig, run Run) (*Provider, error) {
	p := &Provider{run: run}
	if !cfg.Enabled() {
		return p, nil
	}
	p.propagate = cfg.ShouldPropagate()

	sampler, err := newSampler(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return p, nil
	}

	res, err := newResource(ctx, firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), defaultServiceName), run)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	p.res = res
	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	p.tracer = p.tp.Tracer(instrumentationName)

	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// Tracer returns the configured tracer, or a no-op tracer when tracing is off.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Resource returns the resource attached to exported spans, or nil when
// nothing is exported.
func (p *Provider) Resource() *otelresource.Resource {
	if p == nil {
		return nil
	}
	return p.res
}

// StartRun opens the parent span of the run.
func (p *Provider) StartRun(ctx context.Context) (context.Context, trace.Span) {
	var run Run
	if p != nil {
		run = p.run
	}
	return StartRunSpan(ctx, p.Tracer(), run)
}

// ShouldPropagate reports whether fetch requests carry W3C trace headers.
func (p *Provider) ShouldPropagate() bool {
	if p == nil {
		return false
	}
	return p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newResource(ctx context.Context, serviceName string, run Run) (*otelresource.Resource, error) {
	attrs := append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, run.Attributes()...)
	if run.ID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(run.ID))
	}
	return otelresource.New(ctx, otelresource.WithAttributes(attrs...))
}

func newSampler(rate float64) (sdktrace.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		return sdktrace.NeverSample(), nil
	case rate < 1:
		return sdktrace.TraceIDRatioBased(rate), nil
	default:
		return sdktrace.AlwaysSample(), nil
	}
}

func newExporter(ctx context.Context, cfg config.TracingConfig, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol)); protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
				otlptracegrpc.WithInsecure(),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

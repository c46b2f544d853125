package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/rangefetch/internal/resource"
	"github.com/torosent/rangefetch/internal/tracing"
)

const (
	// DefaultURLTemplate points at the Project Gutenberg plain-text mirror.
	DefaultURLTemplate resource.Template = "https://www.gutenberg.org/cache/epub/{id}/pg{id}.txt"
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps how much of one response is buffered.
	DefaultMaxBodyBytes int64 = 64 << 20

	errorBodySnippet = 256
)

// Fetcher retrieves the bytes of one resource. Implementations make exactly
// one attempt per call.
type Fetcher interface {
	Fetch(ctx context.Context, id resource.ID) ([]byte, error)
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Options configures an HTTPFetcher.
type Options struct {
	URLTemplate  resource.Template
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string

	// Client overrides the tuned client built from Timeout.
	Client *http.Client
	Tracer trace.Tracer
	// Propagate injects W3C trace headers into each request.
	Propagate bool
}

func (o Options) normalize() Options {
	if o.URLTemplate == "" {
		o.URLTemplate = DefaultURLTemplate
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.Client == nil {
		o.Client = NewClient(o.Timeout)
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return o
}

// HTTPFetcher performs exactly one GET per Fetch call.
type HTTPFetcher struct {
	opts Options
}

// New validates opts and returns a fetcher. The URL template must expand to an
// absolute http or https URL.
func New(opts Options) (*HTTPFetcher, error) {
	opts = opts.normalize()
	if err := ValidateURLTemplate(opts.URLTemplate); err != nil {
		return nil, err
	}
	return &HTTPFetcher{opts: opts}, nil
}

// ValidateURLTemplate checks that tmpl contains the identifier placeholder
// and expands to an absolute http(s) URL.
func ValidateURLTemplate(tmpl resource.Template) error {
	if err := tmpl.ValidateURL(); err != nil {
		return fmt.Errorf("url template: %w", err)
	}
	return nil
}

// URL returns the remote location of id.
func (f *HTTPFetcher) URL(id resource.ID) string {
	return f.opts.URLTemplate.Expand(id)
}

// Fetch downloads the resource identified by id and returns its body.
func (f *HTTPFetcher) Fetch(ctx context.Context, id resource.ID) ([]byte, error) {
	target := f.URL(id)
	ctx, span := tracing.StartFetchSpan(ctx, f.opts.Tracer, int64(id), target)

	data, status, err := f.get(ctx, target)

	attrs := []attribute.KeyValue{tracing.AttrBodySize.Int(len(data))}
	if status != 0 {
		attrs = append(attrs, tracing.AttrStatusCode.Int(status))
	}
	tracing.EndSpan(span, err, attrs...)
	return data, err
}

func (f *HTTPFetcher) get(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	if f.opts.Propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
		return nil, resp.StatusCode, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	limit := f.opts.MaxBodyBytes
	if resp.ContentLength > limit {
		return nil, resp.StatusCode, &TransportError{
			Err: fmt.Errorf("%w: content length %d > %d", ErrBodyTooLarge, resp.ContentLength, limit),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, resp.StatusCode, &TransportError{
			Err: fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit),
		}
	}
	return data, resp.StatusCode, nil
}

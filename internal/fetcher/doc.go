// Package fetcher retrieves one resource per call from a remote HTTP origin.
//
// The location of each resource comes from a URL template in which every
// "{id}" placeholder is replaced by the decimal identifier:
//
//	f, err := fetcher.New(fetcher.Options{
//		URLTemplate: "https://www.gutenberg.org/cache/epub/{id}/pg{id}.txt",
//		Timeout:     30 * time.Second,
//	})
//	data, err := f.Fetch(ctx, 1342)
//
// # Errors
//
// Fetch never retries. A non-2xx response is returned as [*HTTPError]; any
// other fault (timeouts, DNS failures, connection resets, body read errors
// or an oversized body) is returned as [*TransportError]. Both implement
// [resource.Classifier], so callers can map them to a failure kind with
// [Classify] or [resource.Classify].
//
// # Tracing
//
// Each call is wrapped in an OpenTelemetry client span. Pass the tracer from
// [github.com/torosent/rangefetch/internal/tracing] through [Options.Tracer];
// without one a no-op tracer is used.
package fetcher

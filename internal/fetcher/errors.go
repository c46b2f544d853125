package fetcher

import (
	"errors"
	"fmt"
	"net"

	"github.com/torosent/rangefetch/internal/resource"
)

// ErrBodyTooLarge is wrapped in a TransportError when a response exceeds the body limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// HTTPError is returned when the origin answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) FailureKind() resource.FailureKind {
	return resource.FailureRejected
}

// TransportError is returned when no complete response could be obtained.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) FailureKind() resource.FailureKind {
	return resource.FailureTransport
}

// Timeout reports whether the underlying fault was a timeout.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Classify maps a Fetch error to its failure kind. Errors that carry no
// classification are treated as transport faults.
func Classify(err error) resource.FailureKind {
	return resource.Classify(err, resource.FailureTransport)
}

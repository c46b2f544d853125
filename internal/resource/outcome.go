package resource

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags the variant held by an Outcome.
type Kind int

const (
	KindSkipped Kind = iota
	KindSuccess
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSkipped:
		return "skipped"
	case KindSuccess:
		return "fetched"
	case KindFailure:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FailureKind classifies why an identifier could not be stored.
type FailureKind string

const (
	// FailureTransport covers timeouts, DNS errors, resets and body read errors.
	FailureTransport FailureKind = "transport"
	// FailureRejected covers non-success status codes returned by the origin.
	FailureRejected FailureKind = "rejected"
	// FailureStore covers existence checks and writes that failed locally.
	FailureStore FailureKind = "store"
)

// Classifier is implemented by errors that know their own FailureKind.
type Classifier interface {
	FailureKind() FailureKind
}

// Outcome is the result of processing one identifier. Exactly one of the
// Skipped, Success or Failure variants is held, selected by Kind.
type Outcome struct {
	ID      ID
	Kind    Kind
	Bytes   int64
	Failure FailureKind
	Reason  error
	Latency time.Duration
	Worker  int
}

// Skipped reports that the resource was already stored and nothing was fetched.
func Skipped(id ID) Outcome {
	return Outcome{ID: id, Kind: KindSkipped}
}

// Success reports that size bytes were fetched and persisted.
func Success(id ID, size int64) Outcome {
	return Outcome{ID: id, Kind: KindSuccess, Bytes: size}
}

// Failure reports that the identifier was not stored.
func Failure(id ID, kind FailureKind, reason error) Outcome {
	return Outcome{ID: id, Kind: KindFailure, Failure: kind, Reason: reason}
}

// Err returns the failure reason, or nil for the other variants.
func (o Outcome) Err() error {
	if o.Kind != KindFailure {
		return nil
	}
	return o.Reason
}

// Classify returns the FailureKind carried by err, or fallback when no error
// in the chain implements Classifier.
func Classify(err error, fallback FailureKind) FailureKind {
	var c Classifier
	if errors.As(err, &c) {
		return c.FailureKind()
	}
	return fallback
}

package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/torosent/rangefetch/internal/resource"
)

// Fetcher retrieves the bytes of one resource.
type Fetcher interface {
	Fetch(ctx context.Context, id resource.ID) ([]byte, error)
}

// Store reports and persists resources.
type Store interface {
	Exists(ctx context.Context, id resource.ID) (bool, error)
	Write(ctx context.Context, id resource.ID, data []byte) error
}

// Options configure the Runner.
type Options struct {
	Workers   int        // number of worker goroutines, must be >= 1
	Store     Store      // required
	Fetcher   Fetcher    // required
	Observers []Observer // notified of every outcome, from worker goroutines
	Logger    *zap.Logger
}

func (o *Options) validate() error {
	if o.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if o.Store == nil {
		return ErrNilStore
	}
	if o.Fetcher == nil {
		return ErrNilFetcher
	}
	return nil
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	observers := o.Observers[:0:0]
	for _, obs := range o.Observers {
		if obs != nil {
			observers = append(observers, obs)
		}
	}
	o.Observers = observers
}

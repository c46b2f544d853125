package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/rangefetch/internal/queue"
	"github.com/torosent/rangefetch/internal/resource"
)

var (
	ErrInvalidWorkers = errors.New("workers must be at least 1")
	ErrNilStore       = errors.New("store is required")
	ErrNilFetcher     = errors.New("fetcher is required")
)

// Result captures the outcome counts of one run.
type Result struct {
	Total    int64 // identifiers in the range
	Fetched  int64
	Skipped  int64
	Failed   int64
	Drained  int // workers that stopped because the queue was empty
	Duration time.Duration
}

// Processed returns the number of identifiers that produced an outcome.
func (r Result) Processed() int64 {
	return r.Fetched + r.Skipped + r.Failed
}

// Complete reports whether every identifier in the range was processed.
func (r Result) Complete() bool {
	return r.Processed() == r.Total
}

// Runner coordinates a fixed pool of workers over one identifier range.
type Runner struct {
	opt Options
}

// New validates opt. It fails with ErrInvalidWorkers, ErrNilStore or
// ErrNilFetcher before any work is scheduled.
func New(opt Options) (*Runner, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	opt.normalize()
	return &Runner{opt: opt}, nil
}

type counters struct {
	fetched atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
	drained atomic.Int64
}

func (c *counters) record(o resource.Outcome) {
	switch o.Kind {
	case resource.KindSuccess:
		c.fetched.Add(1)
	case resource.KindSkipped:
		c.skipped.Add(1)
	case resource.KindFailure:
		c.failed.Add(1)
	}
}

// Run processes every identifier in rng and blocks until all workers have
// stopped. Per-identifier failures are reported in the Result, not as an
// error. The returned error is non-nil only when the run could not start or
// ctx was cancelled before the queue drained.
func (r *Runner) Run(ctx context.Context, rng resource.Range) (Result, error) {
	if r == nil {
		return Result{}, errors.New("runner is nil")
	}
	if err := r.opt.validate(); err != nil {
		return Result{}, err
	}
	if err := rng.Validate(); err != nil {
		return Result{}, err
	}

	q := queue.New()
	if err := q.Seed(rng.IDs()); err != nil {
		return Result{}, fmt.Errorf("seed queue: %w", err)
	}

	log := r.opt.Logger
	log.Debug("run started",
		zap.Stringer("range", rng),
		zap.Int("workers", r.opt.Workers),
		zap.Int("total", rng.Len()),
	)

	start := time.Now()
	var c counters

	var wg sync.WaitGroup
	wg.Add(r.opt.Workers)
	for i := 0; i < r.opt.Workers; i++ {
		go func(worker int) {
			defer wg.Done()
			r.work(ctx, worker, q, &c)
		}(i)
	}
	wg.Wait()

	res := Result{
		Total:    int64(rng.Len()),
		Fetched:  c.fetched.Load(),
		Skipped:  c.skipped.Load(),
		Failed:   c.failed.Load(),
		Drained:  int(c.drained.Load()),
		Duration: time.Since(start),
	}

	log.Debug("run finished",
		zap.Int64("fetched", res.Fetched),
		zap.Int64("skipped", res.Skipped),
		zap.Int64("failed", res.Failed),
		zap.Int("drained", res.Drained),
		zap.Duration("duration", res.Duration),
	)

	if !res.Complete() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Runner) work(ctx context.Context, worker int, q *queue.Queue, c *counters) {
	log := r.opt.Logger.With(zap.Int("worker_id", worker))
	for {
		if ctx.Err() != nil {
			log.Debug("worker cancelled")
			return
		}
		id, ok := q.TryDequeue()
		if !ok {
			c.drained.Add(1)
			log.Debug("worker drained")
			return
		}

		out := r.process(ctx, id)
		out.Worker = worker
		c.record(out)
		for _, obs := range r.opt.Observers {
			obs.Observe(out)
		}
	}
}

func (r *Runner) process(ctx context.Context, id resource.ID) resource.Outcome {
	start := time.Now()
	out := r.attempt(ctx, id)
	out.Latency = time.Since(start)
	return out
}

func (r *Runner) attempt(ctx context.Context, id resource.ID) resource.Outcome {
	exists, err := r.opt.Store.Exists(ctx, id)
	if err != nil {
		return resource.Failure(id, resource.FailureStore, fmt.Errorf("check %d: %w", id, err))
	}
	if exists {
		return resource.Skipped(id)
	}

	data, err := r.opt.Fetcher.Fetch(ctx, id)
	if err != nil {
		return resource.Failure(id, resource.Classify(err, resource.FailureTransport), fmt.Errorf("fetch %d: %w", id, err))
	}

	if err := r.opt.Store.Write(ctx, id, data); err != nil {
		return resource.Failure(id, resource.FailureStore, fmt.Errorf("write %d: %w", id, err))
	}
	return resource.Success(id, int64(len(data)))
}

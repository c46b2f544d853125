// Package runner drains an identifier range through a fixed pool of workers.
//
// Run seeds a [queue.Queue] with every identifier of the range and starts
// exactly Options.Workers goroutines. Each worker repeatedly dequeues an
// identifier, asks the [Store] whether it is already present, and if not
// retrieves it with the [Fetcher] and writes it to the Store. A worker stops
// the first time it finds the queue empty; Run returns once every worker
// has stopped.
//
// # Basic Usage
//
//	r, err := runner.New(runner.Options{
//		Workers: 5,
//		Store:   st,
//		Fetcher: f,
//	})
//	if err != nil {
//		return err
//	}
//	res, err := r.Run(ctx, resource.Range{Start: 1, End: 100})
//
// # Outcomes
//
// Every identifier yields exactly one [resource.Outcome]: skipped, fetched or
// failed. Failures never stop the run and are never retried. They are
// counted in [Result] and handed to every [Observer], which is how metrics,
// progress output and opt-in failure logging are attached.
//
// # Cancellation
//
// When ctx is cancelled, workers finish their current identifier and stop.
// Run then returns the partial Result together with ctx.Err().
package runner

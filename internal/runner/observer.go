package runner

import (
	"go.uber.org/zap"

	"github.com/torosent/rangefetch/internal/resource"
)

// Observer receives every outcome as it is produced. Observe is called
// concurrently from worker goroutines and must not block for long.
type Observer interface {
	Observe(resource.Outcome)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(resource.Outcome)

func (f ObserverFunc) Observe(o resource.Outcome) {
	f(o)
}

// LoggingObserver logs each failed identifier at warn level. Skips and
// successes are logged at debug level.
func LoggingObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ObserverFunc(func(o resource.Outcome) {
		fields := []zap.Field{
			zap.Int64("id", int64(o.ID)),
			zap.Int("worker_id", o.Worker),
			zap.Duration("latency", o.Latency),
		}
		switch o.Kind {
		case resource.KindFailure:
			logger.Warn("fetch failed", append(fields,
				zap.String("failure", string(o.Failure)),
				zap.Error(o.Reason),
			)...)
		case resource.KindSuccess:
			logger.Debug("fetched", append(fields, zap.Int64("bytes", o.Bytes))...)
		case resource.KindSkipped:
			logger.Debug("skipped", fields...)
		}
	})
}

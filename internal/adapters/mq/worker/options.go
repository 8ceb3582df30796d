package worker

import (
	"time"

	"github.com/okian/tandem/pkg/logger"
)

// Option configures a Worker.
type Option func(*Worker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithEmitTimeout bounds a single sink call.
func WithEmitTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.emitTimeout = d
		}
	}
}

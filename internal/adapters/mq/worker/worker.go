// Package worker delivers queued notifications to a sink.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tandem/internal/domain/dedupe"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/notify"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

const (
	poolShutdownTimeout = 30 * time.Second
	defaultEmitTimeout  = 5 * time.Second
)

// Queue defines how workers receive notifications.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Notification
}

// Worker delivers notifications from a queue.
type Worker struct {
	queue       Queue
	sink        notify.Sink
	deduper     dedupe.Deduper
	name        string
	emitTimeout time.Duration
	done        chan struct{}
	logger      logger.Logger
}

// New creates a worker. A nil deduper delivers every notification.
func New(q Queue, sink notify.Sink, d dedupe.Deduper, opts ...Option) *Worker {
	w := &Worker{
		queue:       q,
		sink:        sink,
		deduper:     d,
		name:        "worker",
		emitTimeout: defaultEmitTimeout,
		done:        make(chan struct{}),
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run delivers notifications until the queue closes or ctx ends.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ch := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := w.deliver(ctx, n); err != nil {
				w.logger.Warn(ctx, "notification delivery failed",
					logger.String("id", n.ID),
					logger.String("kind", string(n.Kind)),
					logger.Error(err))
			}
		}
	}
}

// Done is closed once Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) deliver(ctx context.Context, n model.Notification) error {
	start := time.Now()
	defer func() { metrics.RecordWorkerProcessingLatency(metrics.Since(start)) }()

	if w.deduper != nil && w.deduper.SeenAndRecord(ctx, n.ID) {
		metrics.RecordNotificationDuplicate()
		return nil
	}

	emitCtx, cancel := context.WithTimeout(ctx, w.emitTimeout)
	defer cancel()
	if err := w.sink.Emit(emitCtx, n); err != nil {
		if w.deduper != nil {
			w.deduper.Unrecord(ctx, n.ID)
		}
		metrics.RecordNotificationFailed()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "emit_error")
		return fmt.Errorf("emit %s: %w", n.ID, err)
	}
	metrics.RecordNotificationEmitted(string(n.Kind))
	return nil
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*Worker
	logger  logger.Logger
	wg      sync.WaitGroup
}

// NewPool creates count workers. count < 1 uses runtime.NumCPU().
func NewPool(count int, q Queue, sink notify.Sink, d dedupe.Deduper, opts ...Option) *Pool {
	if count < 1 {
		count = runtime.NumCPU()
	}
	p := &Pool{workers: make([]*Worker, count), logger: logger.Nop()}
	for i := range count {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = New(q, sink, d, wopts...)
		p.logger = p.workers[i].logger
	}
	metrics.UpdateWorkerCount(count)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Wait blocks until every worker has returned or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-waitCtx.Done():
		p.logger.Warn(ctx, "worker shutdown timed out")
		return fmt.Errorf("worker shutdown: %w", waitCtx.Err())
	}
}

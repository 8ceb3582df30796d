// Package mq wires the notification queue to its delivery workers.
package mq

import (
	"context"
	"sync"

	"github.com/okian/tandem/internal/adapters/mq/queue"
	"github.com/okian/tandem/internal/adapters/mq/worker"
	"github.com/okian/tandem/internal/domain/dedupe"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/notify"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

const defaultDedupeSize = 100_000

// Dispatcher accepts notifications without blocking and delivers them in the background.
type Dispatcher struct {
	queue *queue.InMemoryQueue
	pool  *worker.Pool
	log   logger.Logger

	once   sync.Once
	cancel context.CancelFunc
}

// Option configures a Dispatcher.
type Option func(*settings)

type settings struct {
	queueSize  int
	workers    int
	dedupeSize int
	log        logger.Logger
}

// WithQueueSize bounds the number of pending notifications.
func WithQueueSize(n int) Option { return func(s *settings) { s.queueSize = n } }

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) Option { return func(s *settings) { s.workers = n } }

// WithDedupeSize sets how many delivered ids are remembered.
func WithDedupeSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// NewDispatcher builds a dispatcher delivering to sink.
func NewDispatcher(sink notify.Sink, opts ...Option) *Dispatcher {
	s := settings{dedupeSize: defaultDedupeSize, log: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return &Dispatcher{
		queue: q,
		pool:  worker.NewPool(s.workers, q, sink, d, worker.WithLogger(s.log)),
		log:   s.log,
	}
}

// Start launches the workers. They run until Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.pool.Start(runCtx)
	d.log.Info(ctx, "notification dispatcher started", logger.Int("workers", d.pool.Size()))
}

// Notify implements notify.Notifier. A full queue drops the notification.
func (d *Dispatcher) Notify(ctx context.Context, n model.Notification) {
	if d.queue.Enqueue(context.WithoutCancel(ctx), n) {
		return
	}
	metrics.RecordNotificationDropped()
	d.log.Warn(ctx, "notification dropped",
		logger.String("id", n.ID),
		logger.String("kind", string(n.Kind)))
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int { return d.queue.Len() }

// Stop closes the queue, lets workers drain it and waits for them.
func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error
	d.once.Do(func() {
		_ = d.queue.Close()
		err = d.pool.Wait(ctx)
		if d.cancel != nil {
			d.cancel()
		}
	})
	return err
}

var _ notify.Notifier = (*Dispatcher)(nil)

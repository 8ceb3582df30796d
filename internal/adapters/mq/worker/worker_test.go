package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/tandem/internal/adapters/mq/worker"
	"github.com/okian/tandem/internal/domain/dedupe"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type chanQueue struct {
	ch chan model.Notification
}

func (q *chanQueue) Dequeue(context.Context) <-chan model.Notification { return q.ch }

type recordingSink struct {
	mu      sync.Mutex
	failFor map[string]int
	got     []string
}

func (s *recordingSink) Emit(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[n.ID] > 0 {
		s.failFor[n.ID]--
		return errors.New("sink unavailable")
	}
	s.got = append(s.got, n.ID)
	return nil
}

func (s *recordingSink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func note(subject string) model.Notification {
	return model.NewNotification(model.NotificationMilestoneReached, subject, "alice", nil, time.Now())
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a worker with a deduper", t, func() {
		q := &chanQueue{ch: make(chan model.Notification, 8)}
		sink := &recordingSink{failFor: map[string]int{}}
		w := worker.New(q, sink, dedupe.NewInMemoryDeduper(), worker.WithName("test"))

		convey.Convey("When the same notification is queued twice", func() {
			n := note("m-1")
			q.ch <- n
			q.ch <- n
			close(q.ch)
			w.Run(context.Background())

			convey.Convey("Then it should be delivered once", func() {
				convey.So(sink.delivered(), convey.ShouldResemble, []string{n.ID})
			})
		})

		convey.Convey("When delivery fails the first time", func() {
			n := note("m-2")
			sink.failFor[n.ID] = 1
			q.ch <- n
			q.ch <- n
			close(q.ch)
			w.Run(context.Background())

			convey.Convey("Then a redelivery should go through", func() {
				convey.So(sink.delivered(), convey.ShouldResemble, []string{n.ID})
			})
		})

		convey.Convey("When the context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			w.Run(ctx)

			convey.Convey("Then Run should return and signal done", func() {
				_, open := <-w.Done()
				convey.So(open, convey.ShouldBeFalse)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of four workers", t, func() {
		q := &chanQueue{ch: make(chan model.Notification, 64)}
		sink := &recordingSink{failFor: map[string]int{}}
		p := worker.NewPool(4, q, sink, nil)
		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When fifty notifications are queued and the queue closes", func() {
			p.Start(context.Background())
			for i := range 50 {
				q.ch <- note(fmt.Sprintf("m-%d", i))
			}
			close(q.ch)

			convey.Convey("Then every one should be delivered before Wait returns", func() {
				convey.So(p.Wait(context.Background()), convey.ShouldBeNil)
				convey.So(sink.delivered(), convey.ShouldHaveLength, 50)
			})
		})
	})
}

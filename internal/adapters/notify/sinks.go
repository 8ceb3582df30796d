// Package notify delivers post-commit notifications to external channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/tandem/internal/domain/model"
	domain "github.com/okian/tandem/internal/domain/notify"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

// ErrSinkUnavailable is returned while the breaker is open.
var ErrSinkUnavailable = errors.New("notification sink unavailable")

// LogSink writes notifications to the service log. Used when no broker is configured.
type LogSink struct {
	log logger.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Nop()
	}
	return &LogSink{log: l}
}

// Emit implements notify.Sink.
func (s *LogSink) Emit(ctx context.Context, n model.Notification) error {
	s.log.Info(ctx, "notification",
		logger.String("id", n.ID),
		logger.String("kind", string(n.Kind)),
		logger.String("recipient_id", n.RecipientID),
		logger.String("subject_id", n.SubjectID))
	return nil
}

// RedisSink publishes notifications as JSON on a Redis channel.
type RedisSink struct {
	rdb     redis.Cmdable
	channel string
}

// NewRedisSink builds a RedisSink.
func NewRedisSink(rdb redis.Cmdable, channel string) *RedisSink {
	return &RedisSink{rdb: rdb, channel: channel}
}

// Emit implements notify.Sink.
func (s *RedisSink) Emit(ctx context.Context, n model.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	if err := s.rdb.Publish(ctx, s.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

// BreakerSettings configures BreakerSink.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

// DefaultBreakerSettings returns production defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "notification-sink",
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// BreakerSink stops calling a failing sink until it has had time to recover.
type BreakerSink struct {
	next domain.Sink
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSink wraps next in a circuit breaker.
func NewBreakerSink(next domain.Sink, cfg BreakerSettings, l logger.Logger) *BreakerSink {
	if l == nil {
		l = logger.Nop()
	}
	metrics.UpdateBreakerState(cfg.Name, 0)
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, breakerGauge(to))
			l.Warn(context.Background(), "notification breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return &BreakerSink{next: next, cb: cb}
}

// Emit implements notify.Sink.
func (s *BreakerSink) Emit(ctx context.Context, n model.Notification) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.next.Emit(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	return err
}

// State reports the breaker state name.
func (s *BreakerSink) State() string { return s.cb.State().String() }

func breakerGauge(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

var (
	_ domain.Sink = (*LogSink)(nil)
	_ domain.Sink = (*RedisSink)(nil)
	_ domain.Sink = (*BreakerSink)(nil)
)

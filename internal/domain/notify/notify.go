// Package notify defines where post-commit notifications go.
package notify

import (
	"context"

	"github.com/okian/tandem/internal/domain/model"
)

// Sink delivers a notification to an external channel.
type Sink interface {
	Emit(ctx context.Context, n model.Notification) error
}

// Notifier hands notifications off without blocking the caller.
// Delivery is best-effort; failures never reach the committing operation.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, model.Notification) {}

// Package notify delivers lifecycle and payment events to downstream
// consumers. Delivery is fire-and-forget: the engine never fails an
// operation because a notification could not be written.
package notify

import (
	"context"
	"log/slog"

	"github.com/tandahub/tanda/internal/models"
)

// Sink receives events emitted by the engine.
type Sink interface {
	Notify(ctx context.Context, n *models.Notification)
}

// NotificationStore is the slice of the ledger the store sink needs.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// StoreSink persists notifications to the ledger for later delivery.
// Write failures are logged and dropped.
type StoreSink struct {
	store NotificationStore
}

// NewStoreSink creates a sink backed by the given store.
func NewStoreSink(store NotificationStore) *StoreSink {
	return &StoreSink{store: store}
}

// Notify persists the event.
func (s *StoreSink) Notify(ctx context.Context, n *models.Notification) {
	if err := s.store.CreateNotification(ctx, n); err != nil {
		slog.Error("Failed to persist notification",
			"user_id", n.UserID, "type", n.Type, "error", err)
	}
}

// NopSink discards events. Used in tests.
type NopSink struct{}

// Notify discards the event.
func (NopSink) Notify(context.Context, *models.Notification) {}

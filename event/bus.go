// Package event provides the engine's event contract: named facts such as
// workflow.started or task.escalated published for notification and audit
// subsystems to consume. The engine produces events, never consumes them.
package event

import (
	"context"
	"time"

	"github.com/xraph/approve/id"
	"github.com/xraph/approve/scope"
)

// Bus provides high-level publish/subscribe operations over an event
// Store. The engine publishes lifecycle facts through it; external code
// subscribes to drive notifications and audit trails.
type Bus struct {
	store Store
}

// NewBus creates an event bus backed by the given store.
func NewBus(store Store) *Bus {
	return &Bus{store: store}
}

// Publish creates and persists a new event, making it available for
// subscribers. The tenant scope is captured from the context.
func (b *Bus) Publish(ctx context.Context, name string, payload []byte) (*Event, error) {
	evt := &Event{
		ID:        id.NewEventID(),
		Name:      name,
		Payload:   payload,
		TenantID:  scope.Capture(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if err := b.store.PublishEvent(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// Subscribe waits for an unacked event matching the given name.
// Blocks until available or timeout. Returns nil on timeout.
func (b *Bus) Subscribe(ctx context.Context, name string, timeout time.Duration) (*Event, error) {
	return b.store.SubscribeEvent(ctx, name, timeout)
}

// Ack acknowledges an event, marking it as consumed.
func (b *Bus) Ack(ctx context.Context, eventID id.EventID) error {
	return b.store.AckEvent(ctx, eventID)
}

// Store returns the underlying event store.
func (b *Bus) Store() Store { return b.store }

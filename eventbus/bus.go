// Package eventbus implements the in-process pub/sub layer (component C2):
// per-topic subscriber lists, optional HLC-ordered delivery with a bounded
// reorder buffer, and an algedonic fast path that bypasses both buffering
// and ordinary backpressure to guarantee sub-10ms emergency delivery.
package eventbus

import (
	"context"
	"time"

	"github.com/jmanhype/vsm-temporal-core/hlc"
)

// Message is the envelope carried over the bus. Payload is typically a
// vsmcore.Event, vsmcore.Detection, or vsmcore.AlgedonicSignal; TS is the
// HLC timestamp used for ordered-delivery sorting.
type Message struct {
	Topic     string
	Payload   any
	TS        hlc.Timestamp
	CreatedAt time.Time
}

// Handler processes a single delivered message.
type Handler func(ctx context.Context, msg Message) error

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// OrderedDelivery enables buffered reordering within BufferWindowMs.
	OrderedDelivery bool

	// BufferWindowMs overrides the bus default reorder tolerance. 0 means
	// "use the bus's configured default".
	BufferWindowMs int64
}

// Subscription identifies and controls a single subscription.
type Subscription interface {
	ID() string
	Topic() string
	Cancel() error
}

// Stats reports bus-wide delivery counters for observability.
type Stats struct {
	Delivered         uint64
	DroppedOrdinary   uint64
	RejectedEmergency uint64
	HandlerTimeouts   uint64
	HandlersEvicted   uint64
}

// Bus is the event bus contract.
type Bus interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Publish enqueues event to all current subscribers of topic and
	// returns once enqueued, not once delivered.
	Publish(ctx context.Context, topic string, payload any, ts hlc.Timestamp) error

	Subscribe(ctx context.Context, topic string, handler Handler, opts SubscribeOptions) (Subscription, error)
	Unsubscribe(ctx context.Context, sub Subscription) error

	Stats() Stats
}

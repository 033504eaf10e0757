package eventbus

import "time"

// Config defines the tunables for a Bus.
type Config struct {
	// BufferWindowMs is the default reorder tolerance for
	// ordered_delivery subscriptions. Default 100.
	BufferWindowMs int64 `json:"bufferWindowMs" yaml:"bufferWindowMs"`

	// QueueCapacity is the per-subscriber queue size for ordinary
	// (non-algedonic) subscriptions. Default 10000.
	QueueCapacity int `json:"queueCapacity" yaml:"queueCapacity"`

	// EmergencyQueueCapacity bounds the algedonic fast-path queue per
	// subscriber. Full queues reject the publish.
	EmergencyQueueCapacity int `json:"emergencyQueueCapacity" yaml:"emergencyQueueCapacity"`

	// HandlerDeadline bounds how long a handler may run before being
	// skipped for that event.
	HandlerDeadline time.Duration `json:"handlerDeadline" yaml:"handlerDeadline"`

	// HandlerEvictionThreshold is the number of consecutive
	// handler-deadline violations after which a subscription is
	// automatically unsubscribed.
	HandlerEvictionThreshold int `json:"handlerEvictionThreshold" yaml:"handlerEvictionThreshold"`
}

// DefaultConfig returns the bus's documented default tunables.
func DefaultConfig() Config {
	return Config{
		BufferWindowMs:           100,
		QueueCapacity:            10_000,
		EmergencyQueueCapacity:   1_000,
		HandlerDeadline:          250 * time.Millisecond,
		HandlerEvictionThreshold: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferWindowMs == 0 {
		c.BufferWindowMs = d.BufferWindowMs
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.EmergencyQueueCapacity == 0 {
		c.EmergencyQueueCapacity = d.EmergencyQueueCapacity
	}
	if c.HandlerDeadline == 0 {
		c.HandlerDeadline = d.HandlerDeadline
	}
	if c.HandlerEvictionThreshold == 0 {
		c.HandlerEvictionThreshold = d.HandlerEvictionThreshold
	}
	return c
}

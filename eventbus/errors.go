package eventbus

import "errors"

// Bus-level errors.
var (
	ErrBusNotStarted    = errors.New("eventbus: bus not started")
	ErrBusAlreadyClosed = errors.New("eventbus: bus already closed")
	ErrHandlerNil       = errors.New("eventbus: handler cannot be nil")
	ErrUnknownSubscriber = errors.New("eventbus: unknown subscription")

	// ErrQueueFull is returned by the emergency (algedonic) fast path when
	// its bounded queue is full — reject-publish semantics
	// caller is expected to retry.
	ErrQueueFull = errors.New("eventbus: algedonic queue full, retry publish")

	// ErrDeadlineExceeded is returned by blocking operations whose
	// deadline expired without leaving the bus in an inconsistent state.
	ErrDeadlineExceeded = errors.New("eventbus: deadline exceeded")

	// ErrHandlerEvicted describes a subscription auto-removed after
	// repeated handler-deadline violations. The handler_evicted
	// notification carries the evicted subscription's id as its payload,
	// not this error.
	ErrHandlerEvicted = errors.New("eventbus: handler evicted after repeated deadline violations")
)

package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/logging"
	"github.com/jmanhype/vsm-temporal-core/metrics"
)

// MemoryBus is the in-process Bus implementation. It owns its own state
// exclusively; all cross-component interaction is through Publish/Subscribe,
// following a single-writer-per-actor discipline.
type MemoryBus struct {
	cfg    Config
	logger logging.Logger
	sink   metrics.Sink

	topicMu       sync.RWMutex
	subscriptions map[string]map[string]*subscription

	emergencyMu   sync.RWMutex
	emergencySubs map[string]*subscription
	emergencyCh   chan Message

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	startOnce sync.Once

	delivered         uint64
	droppedOrdinary   uint64
	rejectedEmergency uint64
	handlerTimeouts   uint64
	handlersEvicted   uint64
}

type subscription struct {
	id      string
	topic   string
	handler Handler
	opts    SubscribeOptions

	eventCh chan Message
	done    chan struct{}
	finished chan struct{}

	reorder *reorderBuffer

	mu          sync.Mutex
	cancelled   bool
	consecutiveTimeouts int
}

func (s *subscription) ID() string    { return s.id }
func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return nil
	}
	s.cancelled = true
	close(s.done)
	if s.reorder != nil {
		s.reorder.Stop()
	}
	return nil
}

func (s *subscription) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// NewMemoryBus creates a Bus with the given config (zero-valued fields take
// their documented defaults), logger, and metrics sink.
func NewMemoryBus(cfg Config, logger logging.Logger, sink metrics.Sink) *MemoryBus {
	return &MemoryBus{
		cfg:           cfg.withDefaults(),
		logger:        logging.OrNoOp(logger),
		sink:          metrics.OrNoOp(sink),
		subscriptions: make(map[string]map[string]*subscription),
		emergencySubs: make(map[string]*subscription),
	}
}

func (b *MemoryBus) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		b.ctx, b.cancel = context.WithCancel(ctx)
		b.emergencyCh = make(chan Message, b.cfg.EmergencyQueueCapacity)
		b.wg.Add(1)
		go b.runEmergencyDispatcher()
		b.started = true
	})
	return err
}

func (b *MemoryBus) Stop(ctx context.Context) error {
	if !b.started {
		return nil
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.started = false
		return nil
	case <-ctx.Done():
		return ErrDeadlineExceeded
	}
}

// Publish enqueues payload to every subscriber of topic. Publish to
// TopicEmergencyAlgedonicBypass takes the algedonic fast path: it skips
// ordinary queues and reorder buffers entirely and uses reject-publish
// backpressure instead of drop-head.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload any, ts hlc.Timestamp) error {
	if !b.started {
		return ErrBusNotStarted
	}

	msg := Message{Topic: topic, Payload: payload, TS: ts, CreatedAt: time.Now()}

	if topic == TopicEmergencyAlgedonicBypass {
		select {
		case b.emergencyCh <- msg:
			return nil
		default:
			atomic.AddUint64(&b.rejectedEmergency, 1)
			b.sink.Counter("eventbus_emergency_rejected_total", 1, nil)
			return ErrQueueFull
		}
	}

	b.topicMu.RLock()
	subs := make([]*subscription, 0, len(b.subscriptions[topic]))
	for _, sub := range b.subscriptions[topic] {
		subs = append(subs, sub)
	}
	b.topicMu.RUnlock()

	for _, sub := range subs {
		if sub.isCancelled() {
			continue
		}
		select {
		case sub.eventCh <- msg:
		default:
			// drop-head: make room by discarding the oldest queued message,
			// then retry once.
			select {
			case <-sub.eventCh:
			default:
			}
			select {
			case sub.eventCh <- msg:
			default:
				atomic.AddUint64(&b.droppedOrdinary, 1)
				b.sink.Counter("eventbus_dropped_total", 1, map[string]string{"topic": topic})
			}
		}
	}

	return nil
}

// Subscribe registers handler for topic with the given delivery options.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler, opts SubscribeOptions) (Subscription, error) {
	if !b.started {
		return nil, ErrBusNotStarted
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	sub := &subscription{
		id:       uuid.New().String(),
		topic:    topic,
		handler:  handler,
		opts:     opts,
		eventCh:  make(chan Message, b.cfg.QueueCapacity),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	if opts.OrderedDelivery {
		window := time.Duration(b.cfg.BufferWindowMs) * time.Millisecond
		if opts.BufferWindowMs > 0 {
			window = time.Duration(opts.BufferWindowMs) * time.Millisecond
		}
		sub.reorder = newReorderBuffer(window, func(m Message) { b.invoke(sub, m) })
	}

	if topic == TopicEmergencyAlgedonicBypass {
		b.emergencyMu.Lock()
		b.emergencySubs[sub.id] = sub
		b.emergencyMu.Unlock()
	} else {
		b.topicMu.Lock()
		if _, ok := b.subscriptions[topic]; !ok {
			b.subscriptions[topic] = make(map[string]*subscription)
		}
		b.subscriptions[topic][sub.id] = sub
		b.topicMu.Unlock()

		b.wg.Add(1)
		go b.handleEvents(sub)
	}

	return sub, nil
}

// Unsubscribe removes sub; idempotent.
func (b *MemoryBus) Unsubscribe(ctx context.Context, s Subscription) error {
	sub, ok := s.(*subscription)
	if !ok {
		return ErrUnknownSubscriber
	}
	_ = sub.Cancel()

	if sub.topic == TopicEmergencyAlgedonicBypass {
		b.emergencyMu.Lock()
		delete(b.emergencySubs, sub.id)
		b.emergencyMu.Unlock()
		return nil
	}

	b.topicMu.Lock()
	if m, ok := b.subscriptions[sub.topic]; ok {
		delete(m, sub.id)
		if len(m) == 0 {
			delete(b.subscriptions, sub.topic)
		}
	}
	b.topicMu.Unlock()

	select {
	case <-sub.finished:
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

func (b *MemoryBus) handleEvents(sub *subscription) {
	defer b.wg.Done()
	defer close(sub.finished)

	for {
		if sub.isCancelled() {
			return
		}
		select {
		case <-b.ctx.Done():
			return
		case <-sub.done:
			return
		case msg := <-sub.eventCh:
			if sub.isCancelled() {
				return
			}
			if sub.reorder != nil {
				sub.reorder.Add(msg)
				continue
			}
			b.invoke(sub, msg)
		}
	}
}

// invoke runs sub's handler under the configured handler deadline,
// skipping (and counting) the event if the handler overruns, and
// auto-unsubscribing after HandlerEvictionThreshold consecutive overruns.
func (b *MemoryBus) invoke(sub *subscription, msg Message) {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.HandlerDeadline)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.handler(ctx, msg) }()

	select {
	case err := <-done:
		sub.mu.Lock()
		sub.consecutiveTimeouts = 0
		sub.mu.Unlock()
		if err != nil {
			b.logger.Error("event handler failed", "topic", msg.Topic, "error", err)
		}
		atomic.AddUint64(&b.delivered, 1)
	case <-ctx.Done():
		atomic.AddUint64(&b.handlerTimeouts, 1)
		b.logger.Warn("event handler exceeded deadline, skipped", "topic", msg.Topic, "subscription", sub.id)
		sub.mu.Lock()
		sub.consecutiveTimeouts++
		evict := sub.consecutiveTimeouts >= b.cfg.HandlerEvictionThreshold
		sub.mu.Unlock()
		if evict {
			b.evict(sub)
		}
	}
}

func (b *MemoryBus) evict(sub *subscription) {
	_ = sub.Cancel()
	atomic.AddUint64(&b.handlersEvicted, 1)
	b.logger.Error("handler evicted after repeated deadline violations", "topic", sub.topic, "subscription", sub.id)
	notice := Message{Topic: topicHandlerEvicted, Payload: sub.id, CreatedAt: time.Now()}
	b.topicMu.RLock()
	listeners := make([]*subscription, 0, len(b.subscriptions[topicHandlerEvicted]))
	for _, s := range b.subscriptions[topicHandlerEvicted] {
		listeners = append(listeners, s)
	}
	b.topicMu.RUnlock()
	for _, l := range listeners {
		select {
		case l.eventCh <- notice:
		default:
		}
	}
}

// runEmergencyDispatcher drains the single shared emergency queue and fans
// each message out to every current emergency subscriber concurrently, so
// one slow handler cannot delay delivery to the others. This goroutine is
// the only reader of emergencyCh and is never blocked behind ordinary
// traffic: the algedonic path never shares a FIFO with the ordinary bus.
func (b *MemoryBus) runEmergencyDispatcher() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-b.emergencyCh:
			b.emergencyMu.RLock()
			subs := make([]*subscription, 0, len(b.emergencySubs))
			for _, s := range b.emergencySubs {
				subs = append(subs, s)
			}
			b.emergencyMu.RUnlock()

			for _, sub := range subs {
				go func(s *subscription, m Message) {
					ctx, cancel := context.WithTimeout(b.ctx, b.cfg.HandlerDeadline)
					defer cancel()
					if err := s.handler(ctx, m); err != nil {
						b.logger.Error("emergency handler failed", "subscription", s.id, "error", err)
					}
					atomic.AddUint64(&b.delivered, 1)
				}(sub, msg)
			}
		}
	}
}

// Stats returns current delivery counters.
func (b *MemoryBus) Stats() Stats {
	return Stats{
		Delivered:         atomic.LoadUint64(&b.delivered),
		DroppedOrdinary:   atomic.LoadUint64(&b.droppedOrdinary),
		RejectedEmergency: atomic.LoadUint64(&b.rejectedEmergency),
		HandlerTimeouts:   atomic.LoadUint64(&b.handlerTimeouts),
		HandlersEvicted:   atomic.LoadUint64(&b.handlersEvicted),
	}
}

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanhype/vsm-temporal-core/hlc"
)

func ts(physical int64) hlc.Timestamp {
	return hlc.Timestamp{Physical: physical, NodeID: "n1"}
}

func startedBus(t *testing.T) (*MemoryBus, func()) {
	t.Helper()
	bus := NewMemoryBus(DefaultConfig(), nil, nil)
	require.NoError(t, bus.Start(context.Background()))
	return bus, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	}
}

func TestPublishOrdinaryDeliversInPublishOrderWhenUnordered(t *testing.T) {
	bus, stop := startedBus(t)
	defer stop()

	var mu sync.Mutex
	var got []int64

	sub, err := bus.Subscribe(context.Background(), "topic.a", func(_ context.Context, msg Message) error {
		mu.Lock()
		got = append(got, msg.TS.Physical)
		mu.Unlock()
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)
	defer bus.Unsubscribe(context.Background(), sub)

	require.NoError(t, bus.Publish(context.Background(), "topic.a", "p3", ts(300)))
	require.NoError(t, bus.Publish(context.Background(), "topic.a", "p1", ts(100)))
	require.NoError(t, bus.Publish(context.Background(), "topic.a", "p2", ts(200)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{300, 100, 200}, got, "publish order, not HLC order, when ordered_delivery is off")
}

func TestOrderedDeliveryReordersWithinBufferWindow(t *testing.T) {
	bus, stop := startedBus(t)
	defer stop()

	var mu sync.Mutex
	var got []int64
	allReceived := make(chan struct{})

	sub, err := bus.Subscribe(context.Background(), "topic.b", func(_ context.Context, msg Message) error {
		mu.Lock()
		got = append(got, msg.TS.Physical)
		done := len(got) == 3
		mu.Unlock()
		if done {
			close(allReceived)
		}
		return nil
	}, SubscribeOptions{OrderedDelivery: true, BufferWindowMs: 50})
	require.NoError(t, err)
	defer bus.Unsubscribe(context.Background(), sub)

	require.NoError(t, bus.Publish(context.Background(), "topic.b", "p3", ts(300)))
	require.NoError(t, bus.Publish(context.Background(), "topic.b", "p1", ts(100)))
	require.NoError(t, bus.Publish(context.Background(), "topic.b", "p2", ts(200)))

	select {
	case <-allReceived:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reordered delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{100, 200, 300}, got)
}

func TestEmergencyBypassDeliversImmediately(t *testing.T) {
	bus, stop := startedBus(t)
	defer stop()

	start := time.Now()
	received := make(chan time.Time, 1)

	sub, err := bus.Subscribe(context.Background(), TopicEmergencyAlgedonicBypass, func(_ context.Context, msg Message) error {
		received <- time.Now()
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)
	defer bus.Unsubscribe(context.Background(), sub)

	require.NoError(t, bus.Publish(context.Background(), TopicEmergencyAlgedonicBypass, "bypass", ts(1)))

	select {
	case got := <-received:
		assert.Less(t, got.Sub(start), 10*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("emergency signal never delivered")
	}
}

func TestEmergencyQueueFullRejectsPublish(t *testing.T) {
	// The dispatcher goroutine drains emergencyCh continuously (it fans out
	// via non-blocking per-handler goroutines), so saturating it through a
	// slow subscriber is not deterministic. Exercise the reject-publish path
	// directly against the unexported queue instead, without starting the
	// dispatcher.
	bus := NewMemoryBus(DefaultConfig(), nil, nil)
	bus.started = true
	bus.emergencyCh = make(chan Message, 1)

	require.NoError(t, bus.Publish(context.Background(), TopicEmergencyAlgedonicBypass, "first", ts(1)))
	err := bus.Publish(context.Background(), TopicEmergencyAlgedonicBypass, "second", ts(2))
	assert.ErrorIs(t, err, ErrQueueFull)

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.RejectedEmergency)
}

func TestPublishBeforeStartFails(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig(), nil, nil)
	err := bus.Publish(context.Background(), "topic.a", "x", ts(1))
	assert.ErrorIs(t, err, ErrBusNotStarted)
}

func TestHandlerDeadlineSkipsAndEvicts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandlerDeadline = 10 * time.Millisecond
	cfg.HandlerEvictionThreshold = 2
	bus := NewMemoryBus(cfg, nil, nil)
	require.NoError(t, bus.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	}()

	evicted := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), topicHandlerEvicted, func(_ context.Context, _ Message) error {
		close(evicted)
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	slow, err := bus.Subscribe(context.Background(), "topic.slow", func(ctx context.Context, msg Message) error {
		<-ctx.Done()
		return ctx.Err()
	}, SubscribeOptions{})
	require.NoError(t, err)
	defer bus.Unsubscribe(context.Background(), slow)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), "topic.slow", i, ts(int64(i))))
		time.Sleep(30 * time.Millisecond)
	}

	select {
	case <-evicted:
	case <-time.After(time.Second):
		t.Fatal("handler was never evicted")
	}

	stats := bus.Stats()
	assert.GreaterOrEqual(t, stats.HandlersEvicted, uint64(1))
}

package eventbus

import (
	"sort"
	"sync"
	"time"

	"github.com/jmanhype/vsm-temporal-core/hlc"
)

// reorderBuffer accumulates messages arriving within a wall-clock window
// and releases them to deliver in ascending HLC order. A message whose
// timestamp falls behind the buffer's watermark — because the buffer
// already advanced past it — is delivered immediately and out of order:
// late events are never dropped, only their relative ordering is lost.
type reorderBuffer struct {
	window time.Duration
	deliver func(Message)

	mu        sync.Mutex
	pending   []Message
	watermark hlc.Timestamp
	timer     *time.Timer
}

func newReorderBuffer(window time.Duration, deliver func(Message)) *reorderBuffer {
	return &reorderBuffer{window: window, deliver: deliver}
}

// Add admits msg into the buffer, or delivers it immediately if it has
// already fallen behind the watermark.
func (r *reorderBuffer) Add(msg Message) {
	r.mu.Lock()
	if msg.TS.Less(r.watermark) {
		r.mu.Unlock()
		r.deliver(msg)
		return
	}

	r.pending = append(r.pending, msg)
	if r.timer == nil {
		r.timer = time.AfterFunc(r.window, r.flush)
	}
	r.mu.Unlock()
}

func (r *reorderBuffer) flush() {
	r.mu.Lock()
	items := r.pending
	r.pending = nil
	r.timer = nil
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].TS.Less(items[j].TS)
	})
	if len(items) > 0 {
		last := items[len(items)-1].TS
		if r.watermark.Less(last) {
			r.watermark = last
		}
	}
	r.mu.Unlock()

	for _, m := range items {
		r.deliver(m)
	}
}

// Stop cancels any pending flush timer without delivering buffered
// messages (used on unsubscribe/shutdown).
func (r *reorderBuffer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

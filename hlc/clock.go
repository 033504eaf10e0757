// Package hlc implements a Hybrid Logical Clock: a timestamp that combines
// wall-clock milliseconds with a logical counter so that causally related
// events can always be ordered, even when physical clocks tie or skew.
package hlc

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Clock-level failures. ClockUnavailable signals the underlying physical
// clock source failed; ClockExhausted signals the logical counter would
// wrap within a single physical millisecond (never observed at realistic
// event rates, but callers must not silently wrap).
var (
	ErrClockUnavailable = errors.New("hlc: physical clock unavailable")
	ErrClockExhausted    = errors.New("hlc: logical counter exhausted for this millisecond")
)

// Timestamp is the triple (physical_ms, logical, node_id). Total order is
// lexicographic on the triple.
type Timestamp struct {
	Physical int64
	Logical  uint32
	NodeID   string
}

// Less reports whether t happened strictly before other under the total
// order (happens_before when both are causally linked, but Less alone is
// just the lexicographic comparison used for sorting and tie-breaking).
func (t Timestamp) Less(other Timestamp) bool {
	if t.Physical != other.Physical {
		return t.Physical < other.Physical
	}
	if t.Logical != other.Logical {
		return t.Logical < other.Logical
	}
	return t.NodeID < other.NodeID
}

// Equal reports whether t and other are the identical triple.
func (t Timestamp) Equal(other Timestamp) bool {
	return t.Physical == other.Physical && t.Logical == other.Logical && t.NodeID == other.NodeID
}

// Zero reports whether t is the unset zero value.
func (t Timestamp) Zero() bool {
	return t.Physical == 0 && t.Logical == 0 && t.NodeID == ""
}

// PhysicalSource returns the current wall-clock time in milliseconds.
// NewWithSource accepts one so tests can substitute a deterministic source
// without sleeping.
type PhysicalSource func() (int64, error)

func defaultSource() (int64, error) {
	return time.Now().UnixMilli(), nil
}

// Clock assigns and orders HLC timestamps for a single node. It is safe for
// concurrent use; all state transitions happen under a single mutex rather
// than lock-free tricks, since the critical section is always short.
type Clock struct {
	mu       sync.Mutex
	nodeID   string
	physical int64
	logical  uint32
	source   PhysicalSource
}

// New creates a Clock for the given node id using the real wall clock.
// nodeID must uniquely identify this process; there is no default.
func New(nodeID string) *Clock {
	return &Clock{nodeID: nodeID, source: defaultSource}
}

// NewWithSource creates a Clock using a custom physical time source, for
// deterministic tests of monotonicity and overflow behavior.
func NewWithSource(nodeID string, source PhysicalSource) *Clock {
	return &Clock{nodeID: nodeID, source: source}
}

// Now returns a fresh timestamp, advancing the logical counter on ties with
// the previously issued timestamp. It fails only if the physical clock
// source itself fails.
func (c *Clock) Now() (Timestamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys, err := c.source()
	if err != nil {
		return Timestamp{}, ErrClockUnavailable
	}

	if phys > c.physical {
		c.physical = phys
		c.logical = 0
	} else {
		if c.logical == ^uint32(0) {
			return Timestamp{}, ErrClockExhausted
		}
		c.logical++
	}

	return Timestamp{Physical: c.physical, Logical: c.logical, NodeID: c.nodeID}, nil
}

// Observe merges a remote timestamp into the local clock: the physical
// component advances to max(local, remote, now); logical resets to 0 unless
// the chosen physical equals either prior value, in which case it
// increments past that value's logical component (the larger of the two
// when the local and remote physical components both equal it).
func (c *Clock) Observe(remote Timestamp) (Timestamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.source()
	if err != nil {
		return Timestamp{}, ErrClockUnavailable
	}

	chosen := maxInt64(c.physical, maxInt64(remote.Physical, now))

	var base uint32
	var tie bool
	switch {
	case chosen == c.physical && chosen == remote.Physical:
		base, tie = maxUint32(c.logical, remote.Logical), true
	case chosen == c.physical:
		base, tie = c.logical, true
	case chosen == remote.Physical:
		base, tie = remote.Logical, true
	default:
		base, tie = 0, false
	}

	var logical uint32
	if tie {
		if base == ^uint32(0) {
			return Timestamp{}, ErrClockExhausted
		}
		logical = base + 1
	}

	c.physical = chosen
	c.logical = logical

	return Timestamp{Physical: c.physical, Logical: c.logical, NodeID: c.nodeID}, nil
}

// Before returns the total-order comparison between two timestamps,
// independent of any particular Clock instance.
func Before(a, b Timestamp) bool {
	return a.Less(b)
}

// Ordered is implemented by anything carrying an HLC timestamp, so that
// Order can sort arbitrary event-like slices without importing their
// concrete type.
type Ordered interface {
	HLC() Timestamp
}

// Order performs a stable sort of items by (physical, logical, node_id).
func Order[T Ordered](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].HLC().Less(out[j].HLC())
	})
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

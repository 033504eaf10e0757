package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/logging"
	"github.com/jmanhype/vsm-temporal-core/metrics"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

type storedEvent struct {
	core       vsmcore.Event // Payload is nil when compressed is set
	compressed []byte
}

func (s *storedEvent) materialize() vsmcore.Event {
	if s.compressed == nil {
		return s.core
	}
	payload, err := decompressPayload(s.compressed)
	e := s.core
	if err == nil {
		e.Payload = payload
	}
	return e
}

type patternCacheKey struct {
	subsystem vsmcore.Subsystem
	typ       string
}

// MemoryStore is the in-process Store implementation: a single ascending
// slice as the primary index, a per-subsystem secondary index of the same
// pointers, and a bounded pattern cache of the most recent event per
// (subsystem, type) pair.
type MemoryStore struct {
	cfg    Config
	clock  *hlc.Clock
	logger logging.Logger
	sink   metrics.Sink

	mu          sync.RWMutex
	primary     []*storedEvent
	bySubsystem map[vsmcore.Subsystem][]*storedEvent
	patternCache map[patternCacheKey]*storedEvent

	cronScheduler *cron.Cron
	started       bool

	totalIngested   uint64
	totalEvicted    uint64
	totalRetired    uint64
	compressedCount int64
}

// NewMemoryStore creates a Store using clock to fill missing event
// timestamps on ingest.
func NewMemoryStore(cfg Config, clock *hlc.Clock, logger logging.Logger, sink metrics.Sink) *MemoryStore {
	return &MemoryStore{
		cfg:          cfg.withDefaults(),
		clock:        clock,
		logger:       logging.OrNoOp(logger),
		sink:         metrics.OrNoOp(sink),
		bySubsystem:  make(map[vsmcore.Subsystem][]*storedEvent),
		patternCache: make(map[patternCacheKey]*storedEvent),
	}
}

// Start begins the background retention sweep, scheduled by a robfig/cron
// "@every" entry rather than a bare time.Ticker, so CleanupIntervalMs reads
// as an ordinary cron schedule a host application could later override with
// a real cron expression.
func (m *MemoryStore) Start(ctx context.Context) error {
	if m.started {
		return nil
	}
	m.cronScheduler = cron.New()
	spec := fmt.Sprintf("@every %s", m.cfg.cleanupInterval())
	if _, err := m.cronScheduler.AddFunc(spec, m.cleanupOnce); err != nil {
		return fmt.Errorf("store: invalid cleanup schedule %q: %w", spec, err)
	}
	m.cronScheduler.Start()
	m.started = true
	return nil
}

func (m *MemoryStore) Stop(ctx context.Context) error {
	if !m.started {
		return nil
	}
	cronDone := m.cronScheduler.Stop()
	select {
	case <-cronDone.Done():
		m.started = false
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryStore) nowMs() int64 {
	ts, err := m.clock.Now()
	if err != nil {
		return time.Now().UnixMilli()
	}
	return ts.Physical
}

// cleanupOnce evicts every event older than now - RetentionMs.
func (m *MemoryStore) cleanupOnce() {
	cutoff := m.nowMs() - m.cfg.RetentionMs

	m.mu.Lock()
	evicted := 0
	for len(m.primary) > 0 && m.primary[0].core.Timestamp.Physical < cutoff {
		m.evictOldestLocked()
		evicted++
	}
	m.mu.Unlock()

	if evicted > 0 {
		atomic.AddUint64(&m.totalEvicted, uint64(evicted))
		m.logger.Debug("store cleanup evicted events", "count", evicted, "cutoff_physical", cutoff)
		m.sink.Counter("store_cleanup_evicted_total", float64(evicted), nil)
	}
}

// evictOldestLocked drops the globally oldest event (primary[0]) along with
// its subsystem-index and pattern-cache entries. Callers must hold mu.
func (m *MemoryStore) evictOldestLocked() {
	if len(m.primary) == 0 {
		return
	}
	victim := m.primary[0]
	m.primary = m.primary[1:]

	// victim is the global minimum, so it is also the minimum of its own
	// subsystem's subsequence under the same total order.
	sub := m.bySubsystem[victim.core.Subsystem]
	m.bySubsystem[victim.core.Subsystem] = sub[1:]

	key := patternCacheKey{subsystem: victim.core.Subsystem, typ: victim.core.Type}
	if cur, ok := m.patternCache[key]; ok && cur == victim {
		delete(m.patternCache, key)
	}
	if victim.compressed != nil {
		atomic.AddInt64(&m.compressedCount, -1)
	}
}

func compareEvents(a, b vsmcore.Event) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID < b.ID
	}
	return a.Timestamp.Less(b.Timestamp)
}

// Ingest normalizes and inserts event.
func (m *MemoryStore) Ingest(ctx context.Context, event vsmcore.Event) error {
	if !m.started {
		return ErrStoreClosed
	}

	if event.Timestamp.Zero() {
		ts, err := m.clock.Now()
		if err != nil {
			return err
		}
		event.Timestamp = ts
	}
	if event.ID == "" {
		event.ID = vsmcore.EventID(uuid.New().String())
	}
	event = event.Clamped()

	se := &storedEvent{core: event}
	if jsonSize(event.Payload) > m.cfg.CompressionThresholdBytes {
		blob, err := compressPayload(event.Payload)
		if err == nil {
			se.core.Payload = nil
			se.compressed = blob
			atomic.AddInt64(&m.compressedCount, 1)
		}
	}

	m.mu.Lock()
	if len(m.primary) > 0 && event.Timestamp.Less(m.primary[0].core.Timestamp) {
		cutoff := m.nowMsLocked() - m.cfg.RetentionMs
		if event.Timestamp.Physical < cutoff {
			m.mu.Unlock()
			atomic.AddUint64(&m.totalRetired, 1)
			return ErrRetired
		}
	}

	insertSorted(&m.primary, se)
	subSlice := m.bySubsystem[event.Subsystem]
	insertSorted(&subSlice, se)
	m.bySubsystem[event.Subsystem] = subSlice

	m.patternCache[patternCacheKey{subsystem: event.Subsystem, typ: event.Type}] = se

	if len(m.primary) > m.cfg.MaxEvents {
		m.evictOldestLocked()
		atomic.AddUint64(&m.totalEvicted, 1)
	}
	m.mu.Unlock()

	atomic.AddUint64(&m.totalIngested, 1)
	m.sink.Counter("store_ingested_total", 1, nil)
	return nil
}

func (m *MemoryStore) nowMsLocked() int64 {
	return m.nowMs()
}

func insertSorted(slice *[]*storedEvent, se *storedEvent) {
	s := *slice
	idx := sort.Search(len(s), func(i int) bool {
		return compareEvents(se.core, s[i].core)
	})
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = se
	*slice = s
}

// IngestBatch ingests every event, tolerating ErrRetired for individual
// entries and aggregating any other per-event failures so one bad event in
// a large batch does not discard the rest.
func (m *MemoryStore) IngestBatch(ctx context.Context, events []vsmcore.Event) (int, error) {
	accepted := 0
	var errs error
	for _, e := range events {
		if err := m.Ingest(ctx, e); err != nil {
			if err == ErrRetired {
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		accepted++
	}
	return accepted, errs
}

func lowerBound(slice []*storedEvent, ts hlc.Timestamp) int {
	return sort.Search(len(slice), func(i int) bool {
		return !slice[i].core.Timestamp.Less(ts)
	})
}

// QueryWindow returns events in window in ascending HLC order.
func (m *MemoryStore) QueryWindow(ctx context.Context, window vsmcore.Window) ([]vsmcore.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo := lowerBound(m.primary, window.Start)
	hi := lowerBound(m.primary, window.End)

	out := make([]vsmcore.Event, 0, hi-lo)
	for _, se := range m.primary[lo:hi] {
		e := se.materialize()
		if window.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Recent returns events for subsystem within the trailing windowMs.
func (m *MemoryStore) Recent(ctx context.Context, subsystem vsmcore.Subsystem, windowMs int64) ([]vsmcore.Event, error) {
	now := m.nowMs()
	window := vsmcore.Window{
		Start:     hlc.Timestamp{Physical: now - windowMs},
		End:       hlc.Timestamp{Physical: now + 1},
		Subsystem: &subsystem,
	}
	return m.QueryWindow(ctx, window)
}

// FindSequences groups events within the trailing windowMs into runs whose
// consecutive HLC gaps never exceed spec.MaxGapMs, emitting runs of at
// least spec.MinEvents events.
func (m *MemoryStore) FindSequences(ctx context.Context, spec vsmcore.PatternSpec, windowMs int64) ([]Sequence, error) {
	minEvents := spec.MinEvents
	if minEvents == 0 {
		minEvents = 2
	}
	maxGapMs := spec.MaxGapMs
	if maxGapMs == 0 {
		maxGapMs = 2_000
	}

	now := m.nowMs()
	window := vsmcore.Window{
		Start: hlc.Timestamp{Physical: now - windowMs},
		End:   hlc.Timestamp{Physical: now + 1},
	}
	events, err := m.QueryWindow(ctx, window)
	if err != nil {
		return nil, err
	}

	var sequences []Sequence
	var chain []vsmcore.Event
	for _, e := range events {
		if len(chain) == 0 {
			chain = append(chain, e)
			continue
		}
		gap := e.Timestamp.Physical - chain[len(chain)-1].Timestamp.Physical
		if gap > maxGapMs {
			if len(chain) >= minEvents {
				sequences = append(sequences, Sequence{Events: append([]vsmcore.Event(nil), chain...)})
			}
			chain = chain[:0]
		}
		chain = append(chain, e)
	}
	if len(chain) >= minEvents {
		sequences = append(sequences, Sequence{Events: append([]vsmcore.Event(nil), chain...)})
	}
	return sequences, nil
}

// Correlate returns events within ±windowMs of source satisfying any rule.
// The type-pair rule is simplified to "candidate's type equals Rule.Type";
// richer pairing grammars are left to callers that need them.
func (m *MemoryStore) Correlate(ctx context.Context, source vsmcore.Event, rules []Rule, windowMs int64) ([]vsmcore.Event, error) {
	window := vsmcore.Window{
		Start: hlc.Timestamp{Physical: source.Timestamp.Physical - windowMs},
		End:   hlc.Timestamp{Physical: source.Timestamp.Physical + windowMs + 1},
	}
	candidates, err := m.QueryWindow(ctx, window)
	if err != nil {
		return nil, err
	}

	out := make([]vsmcore.Event, 0)
	for _, c := range candidates {
		if c.ID == source.ID {
			continue
		}
		if matchesAnyRule(source, c, rules) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matchesAnyRule(source, candidate vsmcore.Event, rules []Rule) bool {
	for _, r := range rules {
		switch r.Kind {
		case RuleSameSubsystem:
			if candidate.Subsystem == source.Subsystem {
				return true
			}
		case RuleCausalBefore:
			if id, ok := candidate.CausedBy(); ok && id == source.ID {
				return true
			}
			if id, ok := source.CausedBy(); ok && id == candidate.ID {
				return true
			}
		case RuleTypePair:
			if candidate.Type == r.Type {
				return true
			}
		case RuleCustom:
			if r.Predicate != nil && r.Predicate(source, candidate) {
				return true
			}
		}
	}
	return false
}

// Stats reports current store-wide counters.
func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		EventCount:      len(m.primary),
		CompressedCount: int(atomic.LoadInt64(&m.compressedCount)),
		TotalIngested:   atomic.LoadUint64(&m.totalIngested),
		TotalEvicted:    atomic.LoadUint64(&m.totalEvicted),
		TotalRetired:    atomic.LoadUint64(&m.totalRetired),
	}
	if len(m.primary) > 0 {
		s.OldestPhysical = m.primary[0].core.Timestamp.Physical
		s.NewestPhysical = m.primary[len(m.primary)-1].core.Timestamp.Physical
	}
	return s
}

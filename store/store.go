// Package store implements the bounded, HLC-ordered Event Store (component
// C3): windowed, subsystem, and sequence queries over retained events with
// retention-driven eviction and optional payload compression.
package store

import (
	"context"

	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// Sequence is a run of events produced by FindSequences: consecutive events
// whose HLC gaps never exceed the pattern spec's MaxGapMs.
type Sequence struct {
	Events []vsmcore.Event
}

// RuleKind selects how Correlate matches candidate events against a source
// event.
type RuleKind int

const (
	RuleSameSubsystem RuleKind = iota
	RuleCausalBefore
	RuleTypePair
	RuleCustom
)

// Rule is one correlation test; an event matches Correlate if it satisfies
// any rule in the set.
type Rule struct {
	Kind RuleKind

	// Type is the event type a candidate must have to match RuleTypePair;
	// the source event's own type is not consulted.
	Type string

	// Predicate is used for RuleCustom.
	Predicate func(source, candidate vsmcore.Event) bool
}

// Stats reports store-wide counts and the oldest/newest retained physical
// timestamps.
type Stats struct {
	EventCount      int
	CompressedCount int
	TotalIngested   uint64
	TotalEvicted    uint64
	TotalRetired    uint64
	OldestPhysical  int64
	NewestPhysical  int64
}

// Store is the Event Store contract.
type Store interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Ingest normalizes and inserts event: it fills a missing HLC timestamp
	// from clock, assigns an id if absent, and compresses the payload
	// above the configured threshold. Returns ErrRetired if event is older
	// than the retention window.
	Ingest(ctx context.Context, event vsmcore.Event) error

	// IngestBatch ingests each event in order, returning the number
	// accepted; it does not stop at the first ErrRetired.
	IngestBatch(ctx context.Context, events []vsmcore.Event) (accepted int, err error)

	QueryWindow(ctx context.Context, window vsmcore.Window) ([]vsmcore.Event, error)
	Recent(ctx context.Context, subsystem vsmcore.Subsystem, windowMs int64) ([]vsmcore.Event, error)
	FindSequences(ctx context.Context, spec vsmcore.PatternSpec, windowMs int64) ([]Sequence, error)
	Correlate(ctx context.Context, source vsmcore.Event, rules []Rule, windowMs int64) ([]vsmcore.Event, error)

	Stats() Stats
}

package vsmcore

import (
	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/numeric"
)

// EventID opaquely identifies an Event.
type EventID string

// Event is an immutable timestamped record ingested from one of the five
// subsystems (or the algedonic channel). Payload carries auxiliary
// application fields (severity, effectiveness, caused_by, trigger,
// new_state, metric values, …) as an opaque map.
type Event struct {
	ID        EventID
	Timestamp hlc.Timestamp
	Type      string
	Subsystem Subsystem
	Urgency   float64
	Valence   float64
	Payload   map[string]any
}

// HLC implements hlc.Ordered so slices of Event can be passed to hlc.Order.
func (e Event) HLC() hlc.Timestamp { return e.Timestamp }

// Clamped enforces the event's value bounds: urgency in [0,1], valence in
// [-1,1].
func (e Event) Clamped() Event {
	e.Urgency = numeric.Clamp(e.Urgency, 0, 1)
	e.Valence = numeric.Clamp(e.Valence, -1, 1)
	return e
}

// CausedBy returns the originating event id referenced by this event's
// payload, if any. caused_by is a lookup key, not an ownership edge — the
// referenced event may since have been evicted, which callers must handle.
func (e Event) CausedBy() (EventID, bool) {
	v, ok := e.Payload["caused_by"]
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case EventID:
		return id, true
	case string:
		return EventID(id), true
	default:
		return "", false
	}
}

// PayloadFloat reads a numeric field from Payload, returning (0, false) if
// absent or not a float64/int.
func (e Event) PayloadFloat(key string) (float64, bool) {
	v, ok := e.Payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// PayloadString reads a string field from Payload.
func (e Event) PayloadString(key string) (string, bool) {
	v, ok := e.Payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Window is a half-open temporal interval [Start, End) plus optional
// filters.
type Window struct {
	Start hlc.Timestamp
	End   hlc.Timestamp

	Subsystem  *Subsystem
	Type       string
	MinUrgency float64
}

// Contains reports whether ts falls in [Start, End).
func (w Window) Contains(ts hlc.Timestamp) bool {
	if ts.Less(w.Start) {
		return false
	}
	return ts.Less(w.End)
}

// Matches reports whether e satisfies the window's filters (the temporal
// bound is checked separately via Contains, since callers usually want to
// range-scan on the index before re-checking filters).
func (w Window) Matches(e Event) bool {
	if w.Subsystem != nil && e.Subsystem != *w.Subsystem {
		return false
	}
	if w.Type != "" && e.Type != w.Type {
		return false
	}
	if e.Urgency < w.MinUrgency {
		return false
	}
	return true
}

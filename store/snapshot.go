package store

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"io"

	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// snapshotVersion is bumped whenever the on-disk record's field layout
// changes; LoadSnapshot rejects anything else.
const snapshotVersion = 1

// ErrSnapshotVersion is returned by LoadSnapshot when the record's Version
// does not match snapshotVersion.
var ErrSnapshotVersion = errors.New("store: snapshot version mismatch")

// snapshotEvent mirrors vsmcore.Event but carries Payload pre-encoded as
// JSON bytes: gob cannot round-trip a map[string]any without registering
// every concrete value type it might hold, while a byte slice is gob-safe
// unconditionally — the same JSON-then-bytes approach compression.go
// already uses for the in-memory compressed form.
type snapshotEvent struct {
	ID          vsmcore.EventID
	Timestamp   hlc.Timestamp
	Type        string
	Subsystem   vsmcore.Subsystem
	Urgency     float64
	Valence     float64
	PayloadJSON []byte
}

// snapshotRecord is the versioned, gob-encoded on-disk layout: version,
// node_id, watermark_hlc, and events.
type snapshotRecord struct {
	Version      int
	NodeID       string
	WatermarkHLC hlc.Timestamp
	Events       []snapshotEvent
}

// WriteSnapshot encodes every event currently held by m, for restart
// warmth. watermark is typically
// the clock's most recent Observe/Now result at the time of the call.
func WriteSnapshot(w io.Writer, m *MemoryStore, nodeID string, watermark hlc.Timestamp) error {
	m.mu.RLock()
	events := make([]snapshotEvent, 0, len(m.primary))
	for _, se := range m.primary {
		e := se.materialize()
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			m.mu.RUnlock()
			return err
		}
		events = append(events, snapshotEvent{
			ID:          e.ID,
			Timestamp:   e.Timestamp,
			Type:        e.Type,
			Subsystem:   e.Subsystem,
			Urgency:     e.Urgency,
			Valence:     e.Valence,
			PayloadJSON: raw,
		})
	}
	m.mu.RUnlock()

	record := snapshotRecord{
		Version:      snapshotVersion,
		NodeID:       nodeID,
		WatermarkHLC: watermark,
		Events:       events,
	}
	return gob.NewEncoder(w).Encode(record)
}

// LoadSnapshot decodes a record written by WriteSnapshot, rejecting any
// version other than the one this build writes.
func LoadSnapshot(r io.Reader) (nodeID string, watermark hlc.Timestamp, events []vsmcore.Event, err error) {
	var record snapshotRecord
	if err := gob.NewDecoder(r).Decode(&record); err != nil {
		return "", hlc.Timestamp{}, nil, err
	}
	if record.Version != snapshotVersion {
		return "", hlc.Timestamp{}, nil, ErrSnapshotVersion
	}

	out := make([]vsmcore.Event, 0, len(record.Events))
	for _, se := range record.Events {
		var payload map[string]any
		if len(se.PayloadJSON) > 0 {
			if err := json.Unmarshal(se.PayloadJSON, &payload); err != nil {
				return "", hlc.Timestamp{}, nil, err
			}
		}
		out = append(out, vsmcore.Event{
			ID:        se.ID,
			Timestamp: se.Timestamp,
			Type:      se.Type,
			Subsystem: se.Subsystem,
			Urgency:   se.Urgency,
			Valence:   se.Valence,
			Payload:   payload,
		})
	}
	return record.NodeID, record.WatermarkHLC, out, nil
}

// Restore re-ingests a previously loaded snapshot's events into m,
// tolerating ErrRetired entries whose retention window has since elapsed.
func (m *MemoryStore) Restore(ctx context.Context, events []vsmcore.Event) (int, error) {
	return m.IngestBatch(ctx, events)
}

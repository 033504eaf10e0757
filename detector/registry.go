// Package detector implements the Pattern Detector (component C4): a
// registry of named pattern specifications applied to incoming event
// batches, each with its own kind-specific algorithm, per-spec cooldown
// suppression, and an hourly rate cap.
package detector

import (
	"context"
	"sync"
	"time"

	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/logging"
	"github.com/jmanhype/vsm-temporal-core/metrics"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// Detector holds the registered pattern specs and their per-spec firing
// history. It has no background goroutines: Detect runs synchronously over
// whatever batch the caller supplies, favoring an explicit call/return shape
// over a hidden worker pool where no concurrency is required.
type Detector struct {
	cfg    Config
	logger logging.Logger
	sink   metrics.Sink

	mu           sync.Mutex
	specs        map[string]vsmcore.PatternSpec
	lastFired    map[string]time.Time
	hourlyFirings map[string][]time.Time

	batchesProcessed  uint64
	detectionsEmitted uint64
	detectionsSkipped uint64
	processingTimeEMA float64
}

// New creates a Detector with no registered specs.
func New(cfg Config, logger logging.Logger, sink metrics.Sink) *Detector {
	return &Detector{
		cfg:           cfg.withDefaults(),
		logger:        logging.OrNoOp(logger),
		sink:          metrics.OrNoOp(sink),
		specs:         make(map[string]vsmcore.PatternSpec),
		lastFired:     make(map[string]time.Time),
		hourlyFirings: make(map[string][]time.Time),
	}
}

// Register adds or replaces the spec under name.
func (d *Detector) Register(name string, spec vsmcore.PatternSpec) error {
	if !spec.Kind.Valid() {
		return ErrSpecInvalid
	}
	if spec.CooldownMs == 0 {
		spec.CooldownMs = d.cfg.DefaultCooldownMs
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.specs[name] = spec.WithDefaults()
	return nil
}

// Unregister removes name; it is a no-op if name was never registered.
func (d *Detector) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.specs, name)
	delete(d.lastFired, name)
	delete(d.hourlyFirings, name)
}

// Detect runs every registered spec over events and returns the detections
// that survive cooldown suppression and the hourly rate cap.
func (d *Detector) Detect(ctx context.Context, events []vsmcore.Event) ([]vsmcore.Detection, error) {
	start := time.Now()

	ordered := hlc.Order(events)

	d.mu.Lock()
	snapshot := make(map[string]vsmcore.PatternSpec, len(d.specs))
	for name, spec := range d.specs {
		snapshot[name] = spec
	}
	d.mu.Unlock()

	var out []vsmcore.Detection
	now := time.Now()

	for name, spec := range snapshot {
		det, ok := runKind(spec, ordered, d.cfg.VSMScales)
		if !ok {
			continue
		}
		det.Pattern = name
		if det.Fingerprint == "" {
			det.Fingerprint = name
		}

		d.mu.Lock()
		allowed := d.admitLocked(name, det, now)
		d.mu.Unlock()

		if !allowed {
			d.detectionsSkipped++
			continue
		}
		out = append(out, det)
		d.detectionsEmitted++
		d.sink.Counter("detector_detections_total", 1, map[string]string{"kind": string(det.Kind)})
	}

	d.batchesProcessed++
	elapsedUs := float64(time.Since(start).Microseconds())
	d.processingTimeEMA = updateEMA(d.processingTimeEMA, elapsedUs)

	return out, nil
}

// admitLocked enforces cooldown and the hourly rate cap; callers must hold
// d.mu.
func (d *Detector) admitLocked(name string, det vsmcore.Detection, now time.Time) bool {
	spec := d.specs[name]

	if last, ok := d.lastFired[name]; ok {
		elapsed := now.Sub(last)
		cooldown := time.Duration(spec.CooldownMs) * time.Millisecond
		if elapsed < cooldown && det.Severity != vsmcore.SeverityCritical {
			return false
		}
	}

	firings := d.hourlyFirings[name]
	cutoff := now.Add(-time.Hour)
	kept := firings[:0]
	for _, t := range firings {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= d.cfg.MaxDetectionsPerHour {
		d.hourlyFirings[name] = kept
		return false
	}

	d.lastFired[name] = now
	d.hourlyFirings[name] = append(kept, now)
	return true
}

// Stats returns running counters and the processing-time EMA.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		RegisteredSpecs:     len(d.specs),
		BatchesProcessed:    d.batchesProcessed,
		DetectionsEmitted:   d.detectionsEmitted,
		DetectionsSkipped:   d.detectionsSkipped,
		ProcessingTimeUsEMA: d.processingTimeEMA,
	}
}


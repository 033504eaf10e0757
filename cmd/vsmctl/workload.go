package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// synthesizeEvents builds a deterministic batch exercising a representative
// spread of subsystems, types, and urgency so a single `vsmctl run` trips
// several detector kinds without requiring a live producer.
func synthesizeEvents(e *engine, n int, seed int64) ([]vsmcore.Event, error) {
	rng := rand.New(rand.NewSource(seed))
	subsystems := vsmcore.AllSubsystems()
	types := []string{"tick", "error", "state_change", "optimization_success", "coordination"}

	events := make([]vsmcore.Event, 0, n)
	for i := 0; i < n; i++ {
		ts, err := e.clock.Now()
		if err != nil {
			return nil, fmt.Errorf("clock.Now: %w", err)
		}
		typ := types[rng.Intn(len(types))]
		ev := vsmcore.Event{
			ID:        vsmcore.EventID(fmt.Sprintf("evt-%d", i)),
			Timestamp: ts,
			Type:      typ,
			Subsystem: subsystems[rng.Intn(len(subsystems))],
			Urgency:   rng.Float64(),
			Valence:   rng.Float64()*2 - 1,
			Payload:   map[string]any{"seq": i},
		}
		events = append(events, ev.Clamped())
	}
	return events, nil
}

// runWorkload ingests events, runs the detector over the store's recent
// window, and feeds every detection through the algedonic integrator,
// printing a summary line per stage.
func runWorkload(ctx context.Context, e *engine, events []vsmcore.Event) error {
	accepted, err := e.store.IngestBatch(ctx, events)
	if err != nil {
		e.logger.Warn("vsmctl: ingest batch had partial failures", "error", err, "accepted", accepted)
	}
	fmt.Printf("ingested %d/%d events\n", accepted, len(events))

	end, err := e.clock.Now()
	if err != nil {
		return fmt.Errorf("clock.Now: %w", err)
	}
	recent, err := e.store.QueryWindow(ctx, vsmcore.Window{End: end})
	if err != nil {
		return fmt.Errorf("query window: %w", err)
	}

	detections, err := e.det.Detect(ctx, recent)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	fmt.Printf("detector emitted %d detection(s)\n", len(detections))

	for _, det := range detections {
		signal, err := e.integ.Process(ctx, det)
		if err != nil {
			fmt.Printf("  %-10s %-30s neutral (%v)\n", det.Kind, det.Pattern, err)
			continue
		}
		bypass := ""
		if signal.EmergencyBypass {
			bypass = " [EMERGENCY BYPASS]"
		}
		fmt.Printf("  %-10s %-30s %s intensity=%.3f%s\n", det.Kind, det.Pattern, signal.Type, signal.Intensity, bypass)
	}
	return nil
}

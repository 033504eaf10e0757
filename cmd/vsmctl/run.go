package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate a synthetic event batch and run it through ingest, detection, and algedonic classification",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("events")
		seed, _ := cmd.Flags().GetInt64("seed")

		ctx := context.Background()
		e, err := newEngine(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.close(ctx)

		events, err := synthesizeEvents(e, count, seed)
		if err != nil {
			return fmt.Errorf("synthesize events: %w", err)
		}

		if err := runWorkload(ctx, e, events); err != nil {
			return err
		}

		storeStats := e.store.Stats()
		detStats := e.det.Stats()
		busStats := e.bus.Stats()
		fmt.Println()
		fmt.Printf("store:    %d events held, %d ingested total, %d evicted\n", storeStats.EventCount, storeStats.TotalIngested, storeStats.TotalEvicted)
		fmt.Printf("detector: %d specs, %d detections emitted, %d suppressed\n", detStats.RegisteredSpecs, detStats.DetectionsEmitted, detStats.DetectionsSkipped)
		fmt.Printf("bus:      %d delivered, %d dropped\n", busStats.Delivered, busStats.DroppedOrdinary)

		integStats := e.integ.Stats()
		fmt.Printf("algedonic: %d processed, %d emitted, %d bypassed, %d neutral\n", integStats.Processed, integStats.Emitted, integStats.Bypassed, integStats.Neutral)
		return nil
	},
}

func init() {
	runCmd.Flags().Int("events", 200, "number of synthetic events to ingest")
	runCmd.Flags().Int64("seed", 1, "deterministic RNG seed for the synthetic workload")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jmanhype/vsm-temporal-core/algedonic"
	"github.com/jmanhype/vsm-temporal-core/detector"
	"github.com/jmanhype/vsm-temporal-core/eventbus"
	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/logging"
	"github.com/jmanhype/vsm-temporal-core/metrics"
	"github.com/jmanhype/vsm-temporal-core/store"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// engine bundles the five wired components for the lifetime of one CLI
// invocation.
type engine struct {
	clock  *hlc.Clock
	bus    *eventbus.MemoryBus
	store  *store.MemoryStore
	det    *detector.Detector
	integ  *algedonic.Integrator
	logger logging.Logger
	sink   metrics.Sink
}

func buildLogger(levelFlag string) logging.Logger {
	var level slog.Level
	switch strings.ToLower(levelFlag) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return logging.NewSlog(slog.New(handler))
}

func buildSink(cmd *cobra.Command) (metrics.Sink, error) {
	kind, _ := cmd.Flags().GetString("metrics-sink")
	switch kind {
	case "", "noop":
		return metrics.NoOp(), nil
	case "prometheus":
		return metrics.NewPrometheusSink(prometheus.NewRegistry()), nil
	case "datadog":
		addr, _ := cmd.Flags().GetString("datadog-addr")
		return metrics.NewDatadogSink(addr, "vsm")
	default:
		return nil, fmt.Errorf("unknown --metrics-sink %q (want noop, prometheus, or datadog)", kind)
	}
}

// newEngine constructs and starts every component, registering one detector
// spec per kind at the demo thresholds set in registerDefaultSpecs.
func newEngine(ctx context.Context, cmd *cobra.Command) (*engine, error) {
	nodeID, _ := cmd.Flags().GetString("node-id")
	logLevel, _ := cmd.Flags().GetString("log-level")

	logger := buildLogger(logLevel)
	sink, err := buildSink(cmd)
	if err != nil {
		return nil, err
	}

	clock := hlc.New(nodeID)

	bus := eventbus.NewMemoryBus(eventbus.DefaultConfig(), logger, sink)
	if err := bus.Start(ctx); err != nil {
		return nil, fmt.Errorf("start event bus: %w", err)
	}

	eventStore := store.NewMemoryStore(store.DefaultConfig(), clock, logger, sink)
	if err := eventStore.Start(ctx); err != nil {
		return nil, fmt.Errorf("start event store: %w", err)
	}

	det := detector.New(detector.DefaultConfig(), logger, sink)
	if err := registerDefaultSpecs(det); err != nil {
		return nil, fmt.Errorf("register detector specs: %w", err)
	}

	integCfg := algedonic.DefaultConfig()
	integCfg.NodeID = nodeID
	integ := algedonic.New(integCfg, bus, logger, sink)

	return &engine{
		clock:  clock,
		bus:    bus,
		store:  eventStore,
		det:    det,
		integ:  integ,
		logger: logger,
		sink:   sink,
	}, nil
}

func (e *engine) close(ctx context.Context) {
	if err := e.store.Stop(ctx); err != nil {
		e.logger.Error("vsmctl: store stop failed", "error", err)
	}
	if err := e.bus.Stop(ctx); err != nil {
		e.logger.Error("vsmctl: bus stop failed", "error", err)
	}
}

// registerDefaultSpecs registers one PatternSpec per detector kind at
// reasonable default thresholds, so `vsmctl run` exercises every kind
// without requiring the operator to hand-configure each one.
func registerDefaultSpecs(det *detector.Detector) error {
	specs := map[string]vsmcore.PatternSpec{
		"rate-burst": {
			Kind: vsmcore.KindRateBurst, WindowMs: 1_000, CooldownMs: 5_000,
			Threshold: 50,
		},
		"rate-threshold": {
			Kind: vsmcore.KindRateThreshold, WindowMs: 10_000, CooldownMs: 10_000,
			Threshold: 20,
		},
		"error-cascade": {
			Kind: vsmcore.KindErrorCascade, WindowMs: 5_000, CooldownMs: 30_000,
			MinEvents: 5, MaxGapMs: 1_000,
		},
		"state-transition-sequence": {
			Kind: vsmcore.KindStateTransitionSequence, WindowMs: 30_000, CooldownMs: 30_000,
			States: []string{"normal", "degraded", "critical"}, MaxGapMs: 5_000,
		},
		"cross-subsystem-correlation": {
			Kind: vsmcore.KindCrossSubsystemCorrelation, WindowMs: 10_000, CooldownMs: 30_000,
			CorrelationThreshold: 0.6, TimeLagMs: 2_000,
		},
		"statistical-anomaly": {
			Kind: vsmcore.KindStatisticalAnomaly, WindowMs: 60_000, CooldownMs: 30_000,
			AnomalyThreshold: 3, MinSamples: 10,
		},
		"behavior-anomaly": {
			Kind: vsmcore.KindBehaviorAnomaly, WindowMs: 60_000, CooldownMs: 30_000,
			AnomalyMultiplier: 2,
		},
		"coordination-breakdown": {
			Kind: vsmcore.KindCoordinationBreakdown, WindowMs: 30_000, CooldownMs: 30_000,
			S2FailureRate: 0.3,
		},
		"variety-overload": {
			Kind: vsmcore.KindVarietyOverload, WindowMs: 10_000, CooldownMs: 30_000,
			VarietyThreshold: 0.8,
		},
		"control-loop-oscillation": {
			Kind: vsmcore.KindControlLoopOscillation, WindowMs: 60_000, CooldownMs: 60_000,
		},
		"recursive-instability": {
			Kind: vsmcore.KindRecursiveInstability, WindowMs: 60_000, CooldownMs: 60_000,
		},
		"algedonic-storm": {
			Kind: vsmcore.KindAlgedonicStorm, WindowMs: 5_000, CooldownMs: 30_000,
			MinEvents: 10,
		},
		"pain-escalation": {
			Kind: vsmcore.KindPainEscalation, WindowMs: 30_000, CooldownMs: 30_000,
			MinEvents: 3,
		},
		"pleasure-saturation": {
			Kind: vsmcore.KindPleasureSaturation, WindowMs: 30_000, CooldownMs: 30_000,
			MinEvents: 3,
		},
	}
	for name, spec := range specs {
		if err := det.Register(name, spec); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

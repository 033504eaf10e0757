// Package algedonic implements the Algedonic Integrator (component C5):
// classification of detections into pain/pleasure signals with adaptive
// intensity, emergency-bypass decisions, and per-pattern learning.
package algedonic

import (
	"context"
	"sync"
	"time"

	"github.com/jmanhype/vsm-temporal-core/eventbus"
	"github.com/jmanhype/vsm-temporal-core/logging"
	"github.com/jmanhype/vsm-temporal-core/metrics"
	"github.com/jmanhype/vsm-temporal-core/numeric"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// severityMult is_mult table.
var severityMult = map[vsmcore.Severity]float64{
	vsmcore.SeverityCritical: 1.2,
	vsmcore.SeverityHigh:     1.1,
	vsmcore.SeverityMedium:   1.0,
	vsmcore.SeverityLow:      0.9,
}

func severityMultFor(sev vsmcore.Severity) float64 {
	if m, ok := severityMult[sev]; ok {
		return m
	}
	return 1.0
}

type signalRecord struct {
	intensity float64
	at        time.Time
}

type learningState struct {
	successEMA float64 // neutral start: neither >0.7 nor <0.3
}

func newLearningState() *learningState {
	return &learningState{successEMA: 0.5}
}

const learningEMAAlpha = 0.1

// Integrator translates detections into algedonic signals and, when a Bus
// is supplied, publishes them.
type Integrator struct {
	cfg    Config
	bus    eventbus.Bus
	logger logging.Logger
	sink   metrics.Sink

	mu              sync.Mutex
	painHistory     []signalRecord
	pleasureHistory []signalRecord
	learning        map[string]*learningState

	processed uint64
	emitted   uint64
	bypassed  uint64
	neutral   uint64
}

// New creates an Integrator. bus may be nil, in which case Process computes
// and returns signals without publishing them.
func New(cfg Config, bus eventbus.Bus, logger logging.Logger, sink metrics.Sink) *Integrator {
	return &Integrator{
		cfg:      cfg.withDefaults(),
		bus:      bus,
		logger:   logging.OrNoOp(logger),
		sink:     metrics.OrNoOp(sink),
		learning: make(map[string]*learningState),
	}
}

// Process classifies det, computes its adaptive intensity, decides
// emergency bypass, updates rolling history and per-pattern learning state,
// and — if a Bus was supplied — publishes the resulting signal to
// TopicAlgedonicSignal (and additionally to TopicEmergencyAlgedonicBypass
// on bypass). Returns ErrNeutralDetection when det classifies as neither
// pain nor pleasure.
func (in *Integrator) Process(ctx context.Context, det vsmcore.Detection) (*vsmcore.AlgedonicSignal, error) {
	cat, kind := classify(det)

	in.mu.Lock()
	in.processed++
	if kind == vsmcore.AlgedonicNone {
		in.neutral++
		in.mu.Unlock()
		return nil, ErrNeutralDetection
	}

	var signal vsmcore.AlgedonicSignal
	switch kind {
	case vsmcore.AlgedonicPain:
		signal = in.buildPainLocked(det, cat)
	case vsmcore.AlgedonicPleasure:
		signal = in.buildPleasureLocked(det, cat)
	}

	in.emitted++
	if signal.EmergencyBypass {
		in.bypassed++
	}
	in.mu.Unlock()

	in.sink.Histogram("algedonic_intensity", signal.Intensity, map[string]string{"type": string(signal.Type)})
	in.sink.Counter("algedonic_signals_total", 1, map[string]string{"type": string(signal.Type), "kind": string(signal.Kind)})
	if signal.EmergencyBypass {
		in.sink.Counter("algedonic_bypass_total", 1, map[string]string{"kind": string(signal.Kind)})
	}

	if in.bus != nil {
		if err := in.bus.Publish(ctx, eventbus.TopicAlgedonicSignal, signal, signal.Timestamp); err != nil {
			in.logger.Error("algedonic: publish failed", "error", err, "pattern", signal.Pattern)
		}
		if signal.EmergencyBypass {
			ce := toCloudEvent(in.cfg.NodeID, signal)
			if err := in.bus.Publish(ctx, eventbus.TopicEmergencyAlgedonicBypass, ce, signal.Timestamp); err != nil {
				in.logger.Error("algedonic: emergency bypass publish failed", "error", err, "pattern", signal.Pattern)
			}
		}
	}

	return &signal, nil
}

// buildPainLocked computes a pain signal; callers must hold in.mu.
func (in *Integrator) buildPainLocked(det vsmcore.Detection, cat category) vsmcore.AlgedonicSignal {
	spec := painTable[cat]
	escFactor := escalationFactor(in.painHistory)
	learnAdj := in.learningAdjustmentLocked(det.Pattern)

	intensity := numeric.Clamp(spec.Base*severityMultFor(det.Severity)*escFactor*learnAdj, 0, 1)
	bypass := intensity >= in.cfg.EmergencyBypassThreshold || (det.Urgency >= 0.9 && spec.BypassEligible)

	in.recordLocked(&in.painHistory, intensity)
	in.updateLearningLocked(det.Pattern, intensity < 0.7)

	signal := vsmcore.AlgedonicSignal{
		Type:            vsmcore.SignalPain,
		Intensity:       intensity,
		Urgency:         det.Urgency,
		Source:          in.cfg.NodeID,
		Timestamp:       det.Timestamp,
		EmergencyBypass: bypass,
		Pattern:         det.Pattern,
		Kind:            det.Kind,
	}
	if bypass {
		signal.EmergencyActions = actionsFor(det.Kind)
	}
	return signal
}

// buildPleasureLocked computes a pleasure signal; callers must hold in.mu.
func (in *Integrator) buildPleasureLocked(det vsmcore.Detection, cat category) vsmcore.AlgedonicSignal {
	base := pleasureTable[cat]
	escFactor := escalationFactor(in.pleasureHistory)
	learnAdj := in.learningAdjustmentLocked(det.Pattern)
	satFactor := in.saturationFactorLocked()

	intensity := numeric.Clamp(base*severityMultFor(det.Severity)*escFactor*learnAdj*satFactor, 0, 1)
	// Pleasure is never on the pain-kinds bypass list; only the absolute
	// intensity threshold can trigger bypass (learning_acceleration's 0.85
	// base reaches the default threshold at medium severity).
	bypass := intensity >= in.cfg.EmergencyBypassThreshold

	in.recordLocked(&in.pleasureHistory, intensity)
	in.updateLearningLocked(det.Pattern, intensity > 0.5)

	return vsmcore.AlgedonicSignal{
		Type:            vsmcore.SignalPleasure,
		Intensity:       intensity,
		Urgency:         det.Urgency,
		Source:          in.cfg.NodeID,
		Timestamp:       det.Timestamp,
		EmergencyBypass: bypass,
		Pattern:         det.Pattern,
		Kind:            det.Kind,
	}
}

// learningAdjustmentLocked returns 1 + (base_adjust-1)*learning_rate using
// the pattern's PRIOR success EMA. Callers must hold in.mu.
func (in *Integrator) learningAdjustmentLocked(pattern string) float64 {
	state, ok := in.learning[pattern]
	if !ok {
		state = newLearningState()
		in.learning[pattern] = state
	}
	baseAdjust := 1.0
	switch {
	case state.successEMA > 0.7:
		baseAdjust = 0.9
	case state.successEMA < 0.3:
		baseAdjust = 1.1
	}
	return 1 + (baseAdjust-1)*in.cfg.LearningRate
}

// updateLearningLocked folds this signal's own success outcome into the
// pattern's EMA for use by the NEXT detection of the same pattern. Callers
// must hold in.mu.
func (in *Integrator) updateLearningLocked(pattern string, success bool) {
	state := in.learning[pattern]
	sample := 0.0
	if success {
		sample = 1.0
	}
	state.successEMA = learningEMAAlpha*sample + (1-learningEMAAlpha)*state.successEMA
}

// recordLocked appends to history, trimming to HistorySize. Callers must
// hold in.mu.
func (in *Integrator) recordLocked(history *[]signalRecord, intensity float64) {
	*history = append(*history, signalRecord{intensity: intensity, at: time.Now()})
	if len(*history) > in.cfg.HistorySize {
		*history = (*history)[len(*history)-in.cfg.HistorySize:]
	}
}

// escalationFactor is the ratio of newest-to-oldest intensity over the
// last <= 5 signals, clamped to [0.5, 2.0]; 1.0 when history is insufficient.
func escalationFactor(history []signalRecord) float64 {
	if len(history) < 2 {
		return 1.0
	}
	n := len(history)
	if n > 5 {
		n = 5
	}
	recent := history[len(history)-n:]
	oldest, newest := recent[0].intensity, recent[len(recent)-1].intensity
	ratio := numeric.Ratio(newest, oldest, 1.0)
	return numeric.Clamp(ratio, 0.5, 2.0)
}

// saturationFactorLocked reduces intensity once cumulative pleasure (the sum
// of the rolling pleasure history's intensities) crosses cfg.SaturationLevel,
// giving diminishing returns on repeated pleasure signals. Callers must hold
// in.mu.
func (in *Integrator) saturationFactorLocked() float64 {
	var cumulative float64
	for _, r := range in.pleasureHistory {
		cumulative += r.intensity
	}
	if cumulative <= in.cfg.SaturationLevel {
		return 1.0
	}
	return numeric.Clamp(in.cfg.SaturationLevel/cumulative, 0.5, 1.0)
}

// Stats reports running counters.
func (in *Integrator) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return Stats{
		Processed:    in.processed,
		Emitted:      in.emitted,
		Bypassed:     in.bypassed,
		Neutral:      in.neutral,
		PainHistory:  len(in.painHistory),
		PleasureHistory: len(in.pleasureHistory),
	}
}

// CurrentLevel returns a temporal-decay-weighted average of the given
// signal type's rolling history, most recent samples weighted highest
//. Returns 0 when history is empty.
func (in *Integrator) CurrentLevel(t vsmcore.SignalType) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	var history []signalRecord
	switch t {
	case vsmcore.SignalPain:
		history = in.painHistory
	case vsmcore.SignalPleasure:
		history = in.pleasureHistory
	}
	if len(history) == 0 {
		return 0
	}
	var weightedSum, weightTotal float64
	// age 0 = most recent; weight is 1/(1+TemporalDecayRate*age), falling
	// hyperbolically with each step further into the past.
	for i := len(history) - 1; i >= 0; i-- {
		age := float64(len(history) - 1 - i)
		weight := 1.0 / (1.0 + in.cfg.TemporalDecayRate*age)
		weightedSum += history[i].intensity * weight
		weightTotal += weight
	}
	return weightedSum / weightTotal
}

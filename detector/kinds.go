package detector

import (
	"math"
	"sort"

	"github.com/jmanhype/vsm-temporal-core/numeric"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// runKind dispatches to the kind-specific algorithm for spec.Kind. events
// must already be in ascending HLC order. scales weights variety-pressure
// computations for KindVarietyOverload; other kinds ignore it.
func runKind(spec vsmcore.PatternSpec, events []vsmcore.Event, scales map[vsmcore.Subsystem]vsmcore.VSMScale) (vsmcore.Detection, bool) {
	switch spec.Kind {
	case vsmcore.KindRateBurst:
		return detectRateBurst(spec, events)
	case vsmcore.KindRateThreshold:
		return detectRateThreshold(spec, events)
	case vsmcore.KindErrorCascade:
		return detectErrorCascade(spec, events)
	case vsmcore.KindStateTransitionSequence:
		return detectStateTransitionSequence(spec, events)
	case vsmcore.KindStatisticalAnomaly:
		return detectStatisticalAnomaly(spec, events)
	case vsmcore.KindBehaviorAnomaly:
		return detectBehaviorAnomaly(spec, events)
	case vsmcore.KindCoordinationBreakdown:
		return detectCoordinationBreakdown(spec, events)
	case vsmcore.KindCrossSubsystemCorrelation:
		return detectCrossSubsystemCorrelation(spec, events)
	case vsmcore.KindVarietyOverload:
		return detectVarietyOverload(spec, events, scales)
	case vsmcore.KindControlLoopOscillation:
		return detectControlLoopOscillation(spec, events)
	case vsmcore.KindRecursiveInstability:
		return detectRecursiveInstability(spec, events)
	case vsmcore.KindAlgedonicStorm:
		return detectAlgedonicStorm(spec, events)
	case vsmcore.KindPainEscalation:
		return detectPainEscalation(spec, events)
	case vsmcore.KindPleasureSaturation:
		return detectPleasureSaturation(spec, events)
	default:
		return vsmcore.Detection{}, false
	}
}

func buildDetection(kind vsmcore.DetectorKind, evidence []vsmcore.Event, severity vsmcore.Severity, stats map[string]float64) vsmcore.Detection {
	ids := make([]vsmcore.EventID, len(evidence))
	subset := make(map[vsmcore.Subsystem]struct{})
	typeCounts := make(map[string]int)
	var urgencySum float64
	for i, e := range evidence {
		ids[i] = e.ID
		subset[e.Subsystem] = struct{}{}
		typeCounts[e.Type]++
		urgencySum += e.Urgency
	}
	affected := make([]vsmcore.Subsystem, 0, len(subset))
	for s := range subset {
		affected = append(affected, s)
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })

	det := vsmcore.Detection{
		Kind:               kind,
		Severity:           severity,
		AffectedSubsystems: affected,
		Evidence:           vsmcore.Evidence{EventIDs: ids, Stats: stats},
		Category:           modeType(typeCounts),
	}
	if len(evidence) > 0 {
		det.Timestamp = evidence[len(evidence)-1].Timestamp
		det.Urgency = urgencySum / float64(len(evidence))
	}
	return det
}

// modeType returns the most frequent event Type, breaking ties
// lexicographically so the result is deterministic.
func modeType(counts map[string]int) string {
	best, bestN := "", 0
	for t, n := range counts {
		if n > bestN || (n == bestN && t < best) {
			best, bestN = t, n
		}
	}
	return best
}

// trailingWindow returns the suffix of events (assumed ascending) whose
// physical timestamp falls within windowMs of the batch's last event.
func trailingWindow(events []vsmcore.Event, windowMs int64) []vsmcore.Event {
	if len(events) == 0 {
		return nil
	}
	cutoff := events[len(events)-1].Timestamp.Physical - windowMs
	idx := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp.Physical >= cutoff
	})
	return events[idx:]
}

func filterSubsystem(events []vsmcore.Event, s vsmcore.Subsystem) []vsmcore.Event {
	out := make([]vsmcore.Event, 0)
	for _, e := range events {
		if e.Subsystem == s {
			out = append(out, e)
		}
	}
	return out
}

func physicalSeries(events []vsmcore.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.Timestamp.Physical
	}
	return out
}

// detectRateBurst: count in trailing WindowMs >= Threshold.
func detectRateBurst(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	window := trailingWindow(events, spec.WindowMs)
	if float64(len(window)) < spec.Threshold {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(float64(len(window)), spec.Threshold, spec.Threshold*1.5, spec.Threshold*2, spec.Threshold*3)
	return buildDetection(spec.Kind, window, sev, map[string]float64{"event_count": float64(len(window))}), true
}

// detectRateThreshold: rate over WindowMs exceeds a configured per-second
// rate, optionally filtered by TargetType.
func detectRateThreshold(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	window := trailingWindow(events, spec.WindowMs)
	if spec.TargetType != "" {
		filtered := make([]vsmcore.Event, 0, len(window))
		for _, e := range window {
			if e.Type == spec.TargetType {
				filtered = append(filtered, e)
			}
		}
		window = filtered
	}
	seconds := float64(spec.WindowMs) / 1000
	rate := numeric.Ratio(float64(len(window)), seconds, 0)
	if rate < spec.Threshold {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(rate, spec.Threshold, spec.Threshold*1.5, spec.Threshold*2, spec.Threshold*3)
	return buildDetection(spec.Kind, window, sev, map[string]float64{"rate_per_sec": rate}), true
}

// detectErrorCascade: cascade detection — sort by HLC (already ordered),
// roll a previous-event pointer, start a new chain when the gap exceeds
// MaxGapMs, emit chains of length >= MinEvents.
func detectErrorCascade(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	candidates := make([]vsmcore.Event, 0, len(events))
	for _, e := range events {
		if len(spec.TargetSubsystems) > 0 && !containsSubsystem(spec.TargetSubsystems, e.Subsystem) {
			continue
		}
		if e.Type == "error" || e.Urgency >= 0.8 {
			candidates = append(candidates, e)
		}
	}

	var best []vsmcore.Event
	var chain []vsmcore.Event
	flush := func() {
		if len(chain) > len(best) {
			best = append([]vsmcore.Event(nil), chain...)
		}
	}
	for _, e := range candidates {
		if len(chain) > 0 {
			gap := e.Timestamp.Physical - chain[len(chain)-1].Timestamp.Physical
			if gap > spec.MaxGapMs {
				flush()
				chain = chain[:0]
			}
		}
		chain = append(chain, e)
	}
	flush()

	if len(best) < spec.MinEvents {
		return vsmcore.Detection{}, false
	}
	min := float64(spec.MinEvents)
	sev := vsmcore.SeverityFromThresholds(float64(len(best)), min-1, min, min+1, min+3)
	return buildDetection(spec.Kind, best, sev, map[string]float64{"chain_length": float64(len(best))}), true
}

func containsSubsystem(list []vsmcore.Subsystem, s vsmcore.Subsystem) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// detectStateTransitionSequence matches spec.States as an in-order
// subsequence of state_change events with gaps <= MaxGapMs.
func detectStateTransitionSequence(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	if len(spec.States) == 0 {
		return vsmcore.Detection{}, false
	}
	var matched []vsmcore.Event
	var lastTs int64
	target := 0

	for _, e := range events {
		if e.Type != "state_change" {
			continue
		}
		state, ok := e.PayloadString("new_state")
		if !ok || state != spec.States[target] {
			continue
		}
		if len(matched) > 0 && e.Timestamp.Physical-lastTs > spec.MaxGapMs {
			matched = matched[:0]
			target = 0
			if state != spec.States[0] {
				continue
			}
		}
		matched = append(matched, e)
		lastTs = e.Timestamp.Physical
		target++
		if target == len(spec.States) {
			break
		}
	}

	if target != len(spec.States) {
		return vsmcore.Detection{}, false
	}
	return buildDetection(spec.Kind, matched, vsmcore.SeverityMedium, map[string]float64{"matched_states": float64(len(matched))}), true
}

// detectStatisticalAnomaly: two-pass mean/stddev over MetricField, flagging
// samples with |x-mean| > AnomalyThreshold*stddev.
func detectStatisticalAnomaly(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	var samples []float64
	var sampleEvents []vsmcore.Event
	for _, e := range events {
		if v, ok := e.PayloadFloat(spec.MetricField); ok {
			samples = append(samples, v)
			sampleEvents = append(sampleEvents, e)
		}
	}
	if len(samples) < spec.MinSamples {
		return vsmcore.Detection{}, false
	}

	mean, stddev := numeric.MeanStdDev(samples)
	var anomalies []vsmcore.Event
	for i, v := range samples {
		if numeric.ZScore(v, mean, stddev) > spec.AnomalyThreshold {
			anomalies = append(anomalies, sampleEvents[i])
		}
	}
	if len(anomalies) == 0 {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(float64(len(anomalies)), 1, 2, 3, 5)
	return buildDetection(spec.Kind, anomalies, sev, map[string]float64{
		"anomaly_count": float64(len(anomalies)),
		"mean":          mean,
		"stddev":        stddev,
	}), true
}

// detectBehaviorAnomaly compares event rate in the second half of the
// window against the first half; a shift by AnomalyMultiplier either way
// signals a frequency/timing deviation from baseline.
func detectBehaviorAnomaly(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	window := trailingWindow(events, spec.WindowMs)
	if len(window) < 4 {
		return vsmcore.Detection{}, false
	}
	mid := len(window) / 2
	firstHalf, secondHalf := window[:mid], window[mid:]
	ratio := numeric.Ratio(float64(len(secondHalf)), float64(len(firstHalf)), 1.0)

	if ratio < spec.AnomalyMultiplier && ratio > numeric.Ratio(1, spec.AnomalyMultiplier, 1.0) {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(math.Abs(ratio-1), 0.5, 1.0, 2.0, 4.0)
	return buildDetection(spec.Kind, window, sev, map[string]float64{"rate_ratio": ratio}), true
}

// detectCoordinationBreakdown flags when S2's failure rate (error type or
// high urgency) crosses S2FailureRate.
func detectCoordinationBreakdown(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	s2Events := filterSubsystem(events, vsmcore.S2)
	if len(s2Events) == 0 {
		return vsmcore.Detection{}, false
	}
	var failures []vsmcore.Event
	for _, e := range s2Events {
		if e.Type == "error" || e.Urgency >= 0.7 {
			failures = append(failures, e)
		}
	}
	rate := numeric.Ratio(float64(len(failures)), float64(len(s2Events)), 0)
	if rate < spec.S2FailureRate {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(rate, spec.S2FailureRate, 0.8, 0.9, 0.95)
	return buildDetection(spec.Kind, failures, sev, map[string]float64{"failure_rate": rate}), true
}

// detectCrossSubsystemCorrelation: co-occurrence of two subsystems' event
// timestamps within ±TimeLagMs, normalized by the smaller series.
func detectCrossSubsystemCorrelation(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	if len(spec.TargetSubsystems) < 2 {
		return vsmcore.Detection{}, false
	}
	a := filterSubsystem(events, spec.TargetSubsystems[0])
	b := filterSubsystem(events, spec.TargetSubsystems[1])
	if len(a) == 0 || len(b) == 0 {
		return vsmcore.Detection{}, false
	}

	score := numeric.CoOccurrence(physicalSeries(a), physicalSeries(b), spec.TimeLagMs)
	if score < spec.CorrelationThreshold {
		return vsmcore.Detection{}, false
	}
	lag := numeric.MedianLag(physicalSeries(a), physicalSeries(b))
	sev := vsmcore.SeverityFromThresholds(score, spec.CorrelationThreshold, 0.8, 0.9, 0.95)
	evidence := append(append([]vsmcore.Event(nil), a...), b...)
	return buildDetection(spec.Kind, evidence, sev, map[string]float64{
		"correlation_score": score,
		"median_lag_ms":     float64(lag),
	}), true
}

// detectVarietyOverload fires on normalized Shannon entropy of event types
// within a subsystem's VSM-scale window crossing VarietyThreshold, or on
// capacity usage (MetricField, default "capacity_usage") reaching 0.9. Each
// subsystem's window is weighted by scales[subsystem].Multiplier into a
// variety-pressure score (count x multiplier), reported alongside entropy
// and capacity usage.
func detectVarietyOverload(spec vsmcore.PatternSpec, events []vsmcore.Event, scales map[vsmcore.Subsystem]vsmcore.VSMScale) (vsmcore.Detection, bool) {
	const capacityOverloadThreshold = 0.9

	capacityField := spec.MetricField
	if capacityField == "" {
		capacityField = "capacity_usage"
	}

	bySubsystem := make(map[vsmcore.Subsystem][]vsmcore.Event)
	for _, e := range events {
		bySubsystem[e.Subsystem] = append(bySubsystem[e.Subsystem], e)
	}

	for subsystem, subEvents := range bySubsystem {
		scale := scales[subsystem]
		if scale.Multiplier == 0 {
			scale.Multiplier = 1.0
		}
		windowMs := scale.Window
		if windowMs == 0 {
			windowMs = spec.WindowMs
		}
		window := trailingWindow(subEvents, windowMs)

		counts := make(map[string]int)
		var capacityUsage float64
		for _, e := range window {
			counts[e.Type]++
			if v, ok := e.PayloadFloat(capacityField); ok && v > capacityUsage {
				capacityUsage = v
			}
		}
		entropy := numeric.ShannonEntropyNormalized(counts)
		pressure := float64(len(window)) * scale.Multiplier

		if entropy < spec.VarietyThreshold && capacityUsage < capacityOverloadThreshold {
			continue
		}

		trigger := entropy
		if capacityUsage > trigger {
			trigger = capacityUsage
		}
		sev := vsmcore.SeverityFromThresholds(trigger, spec.VarietyThreshold, 0.85, 0.9, 0.95)
		det := buildDetection(spec.Kind, window, sev, map[string]float64{
			"entropy":          entropy,
			"capacity_usage":   capacityUsage,
			"variety_pressure": pressure,
		})
		det.AffectedSubsystems = []vsmcore.Subsystem{subsystem}
		return det, true
	}
	return vsmcore.Detection{}, false
}

// detectControlLoopOscillation counts sign changes in the consecutive
// differences of MetricField (or "value") as a proxy for peak/trough pairs,
// using sample stddev as the amplitude proxy.
func detectControlLoopOscillation(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	field := spec.MetricField
	if field == "" {
		field = "value"
	}
	var values []float64
	var valueEvents []vsmcore.Event
	for _, e := range events {
		if v, ok := e.PayloadFloat(field); ok {
			values = append(values, v)
			valueEvents = append(valueEvents, e)
		}
	}
	if len(values) < 3 {
		return vsmcore.Detection{}, false
	}

	oscillations := 0
	for i := 1; i < len(values)-1; i++ {
		risingBefore := values[i] > values[i-1]
		risingAfter := values[i+1] > values[i]
		if risingBefore != risingAfter {
			oscillations++
		}
	}

	_, amplitude := numeric.MeanStdDev(values)
	if oscillations < spec.MinOscillations || amplitude < spec.AmplitudeThreshold {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(float64(oscillations), float64(spec.MinOscillations), float64(spec.MinOscillations)+2, float64(spec.MinOscillations)+4, float64(spec.MinOscillations)+8)
	return buildDetection(spec.Kind, valueEvents, sev, map[string]float64{
		"oscillations": float64(oscillations),
		"amplitude":    amplitude,
	}), true
}

// detectRecursiveInstability walks caused_by chains; a chain's feedback
// amplification is the ratio of its last-to-first urgency, or 1.0 if the
// first is zero.
func detectRecursiveInstability(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	byID := make(map[vsmcore.EventID]vsmcore.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	for _, e := range events {
		chain := []vsmcore.Event{e}
		cur := e
		for {
			causeID, ok := cur.CausedBy()
			if !ok {
				break
			}
			cause, ok := byID[causeID]
			if !ok {
				break
			}
			chain = append(chain, cause)
			cur = cause
			if len(chain) > spec.RecursionDepth+4 {
				break
			}
		}
		if len(chain) < spec.RecursionDepth {
			continue
		}
		first, last := chain[len(chain)-1].Urgency, chain[0].Urgency
		feedback := numeric.Ratio(last, first, 1.0)
		if feedback >= spec.FeedbackThreshold {
			sev := vsmcore.SeverityFromThresholds(feedback, spec.FeedbackThreshold, 0.8, 0.9, 1.0)
			return buildDetection(spec.Kind, chain, sev, map[string]float64{
				"chain_depth": float64(len(chain)),
				"feedback":    feedback,
			}), true
		}
	}
	return vsmcore.Detection{}, false
}

// detectAlgedonicStorm: >=3 pain events (|valence| >= PainThreshold) within
// DurationMs, with escalation factor (newest/oldest magnitude) >=
// IntensityEscalation.
func detectAlgedonicStorm(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	window := trailingWindow(events, spec.DurationMs)
	var pain []vsmcore.Event
	for _, e := range window {
		if math.Abs(e.Valence) >= spec.PainThreshold {
			pain = append(pain, e)
		}
	}
	if len(pain) < 3 {
		return vsmcore.Detection{}, false
	}
	escalation := numeric.Ratio(math.Abs(pain[len(pain)-1].Valence), math.Abs(pain[0].Valence), 1.0)
	if escalation < spec.IntensityEscalation {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(escalation, spec.IntensityEscalation, 1.8, 2.2, 3.0)
	return buildDetection(spec.Kind, pain, sev, map[string]float64{
		"pain_event_count": float64(len(pain)),
		"escalation":       escalation,
	}), true
}

// detectPainEscalation: positive least-squares slope >= EscalationRate over
// >= MinPainEvents pain-event magnitudes.
func detectPainEscalation(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	var pain []vsmcore.Event
	var intensities []float64
	for _, e := range events {
		if e.Valence < 0 {
			pain = append(pain, e)
			intensities = append(intensities, math.Abs(e.Valence))
		}
	}
	if len(pain) < spec.MinPainEvents {
		return vsmcore.Detection{}, false
	}
	slope := numeric.LeastSquaresSlope(intensities)
	if slope < spec.EscalationRate {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(slope, spec.EscalationRate, spec.EscalationRate*2, spec.EscalationRate*4, spec.EscalationRate*8)
	return buildDetection(spec.Kind, pain, sev, map[string]float64{"slope": slope}), true
}

// detectPleasureSaturation looks for sustained positive valence whose
// successive gains shrink: the second half of the run's average delta
// drops by at least DiminishingReturns relative to the first half.
func detectPleasureSaturation(spec vsmcore.PatternSpec, events []vsmcore.Event) (vsmcore.Detection, bool) {
	var pleasure []vsmcore.Event
	var values []float64
	for _, e := range events {
		if e.Valence > 0 {
			pleasure = append(pleasure, e)
			values = append(values, e.Valence)
		}
	}
	if len(values) < 4 {
		return vsmcore.Detection{}, false
	}

	diffs := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
	}
	mid := len(diffs) / 2
	firstMean, _ := numeric.MeanStdDev(diffs[:mid])
	secondMean, _ := numeric.MeanStdDev(diffs[mid:])

	if firstMean <= 0 {
		return vsmcore.Detection{}, false
	}
	drop := 1 - numeric.Ratio(secondMean, firstMean, 1.0)
	if drop < spec.DiminishingReturns {
		return vsmcore.Detection{}, false
	}
	sev := vsmcore.SeverityFromThresholds(drop, spec.DiminishingReturns, 0.5, 0.7, 0.9)
	return buildDetection(spec.Kind, pleasure, sev, map[string]float64{"diminishing_returns": drop}), true
}

package algedonic

import "github.com/jmanhype/vsm-temporal-core/vsmcore"

// category is an algedonic classification label. These do not coincide with
// vsmcore.DetectorKind: the closed detector-kind set names the *algorithm*
// that fired (error_cascade, variety_overload, ...), while the
// classification table's labels name the *category* of outcome the
// detection represents (cascade_failure, temporal_deadlock, ...). Events can
// arrive pre-tagged with a category of their own (e.g. "optimization_success")
// while a different detector kind (e.g. pleasure_saturation) fires over
// them. A Detection therefore carries Category (the majority event Type
// among its evidence) and the Integrator checks Category against the tables
// first. When no evidence category matches, it falls back to
// defaultCategory, a fixed per-Kind mapping onto the nearest classification
// label, documented in DESIGN.md.
type category string

type painSpec struct {
	Base           float64
	BypassEligible bool
}

// painTable gives each pain category its base intensity and whether it is
// eligible for emergency bypass.
var painTable = map[category]painSpec{
	"cascade_failure":         {Base: 0.95, BypassEligible: true},
	"temporal_deadlock":       {Base: 0.90, BypassEligible: true},
	"variety_overload":        {Base: 0.80, BypassEligible: false},
	"performance_degradation": {Base: 0.70, BypassEligible: false},
	"pattern_instability":     {Base: 0.60, BypassEligible: false},
}

// pleasureTable gives each pleasure category its base intensity. Pleasure
// signals are never bypass-eligible.
var pleasureTable = map[category]float64{
	"learning_acceleration":  0.85,
	"coordination_harmony":   0.75,
	"optimization_success":   0.70,
	"stability_achievement":  0.65,
}

// defaultCategory maps a DetectorKind onto the classification label it
// represents when the detection's evidence carries no recognized
// Category of its own.
var defaultCategory = map[vsmcore.DetectorKind]category{
	vsmcore.KindErrorCascade:              "cascade_failure",
	vsmcore.KindAlgedonicStorm:            "cascade_failure",
	vsmcore.KindRecursiveInstability:      "temporal_deadlock",
	vsmcore.KindVarietyOverload:           "variety_overload",
	vsmcore.KindCoordinationBreakdown:     "performance_degradation",
	vsmcore.KindBehaviorAnomaly:           "performance_degradation",
	vsmcore.KindRateThreshold:             "performance_degradation",
	vsmcore.KindControlLoopOscillation:    "pattern_instability",
	vsmcore.KindPainEscalation:            "pattern_instability",
	vsmcore.KindStatisticalAnomaly:        "pattern_instability",
	vsmcore.KindPleasureSaturation:        "optimization_success",
}

// emergencyActions is the kind-specific prescribed action list recorded on
// an emergency-bypass signal.
var emergencyActions = map[vsmcore.DetectorKind][]string{
	vsmcore.KindErrorCascade:           {"isolate_failing_subsystems", "activate_backup_channels", "emergency_rate_limiting"},
	vsmcore.KindRecursiveInstability:   {"break_feedback_loop", "throttle_recursive_source", "escalate_to_s5"},
	vsmcore.KindAlgedonicStorm:         {"suppress_non_critical_channels", "escalate_to_s5", "emergency_rate_limiting"},
	vsmcore.KindCoordinationBreakdown:  {"activate_backup_channels", "escalate_to_s5"},
	vsmcore.KindVarietyOverload:        {"emergency_rate_limiting", "shed_low_priority_variety"},
}

// defaultEmergencyActions is used when kind has no specific entry.
var defaultEmergencyActions = []string{"escalate_to_s5"}

func actionsFor(kind vsmcore.DetectorKind) []string {
	if actions, ok := emergencyActions[kind]; ok {
		return append([]string(nil), actions...)
	}
	return append([]string(nil), defaultEmergencyActions...)
}

// classify resolves a Detection to its algedonic category and kind,
// otherwise neutral. cat is "" on a neutral result.
func classify(det vsmcore.Detection) (cat category, kind vsmcore.AlgedonicKind) {
	c := category(det.Category)
	if _, ok := painTable[c]; ok {
		return c, vsmcore.AlgedonicPain
	}
	if _, ok := pleasureTable[c]; ok {
		return c, vsmcore.AlgedonicPleasure
	}
	if fallback, ok := defaultCategory[det.Kind]; ok {
		if _, ok := painTable[fallback]; ok {
			return fallback, vsmcore.AlgedonicPain
		}
		if _, ok := pleasureTable[fallback]; ok {
			return fallback, vsmcore.AlgedonicPleasure
		}
	}
	return "", vsmcore.AlgedonicNone
}

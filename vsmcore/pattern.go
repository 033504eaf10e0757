package vsmcore

import "github.com/jmanhype/vsm-temporal-core/hlc"

// DetectorKind is the closed set of temporal pattern detectors implementers
// must support.
type DetectorKind string

const (
	KindRateBurst                 DetectorKind = "rate_burst"
	KindRateThreshold              DetectorKind = "rate_threshold"
	KindErrorCascade               DetectorKind = "error_cascade"
	KindStateTransitionSequence    DetectorKind = "state_transition_sequence"
	KindStatisticalAnomaly         DetectorKind = "statistical_anomaly"
	KindBehaviorAnomaly            DetectorKind = "behavior_anomaly"
	KindCoordinationBreakdown      DetectorKind = "coordination_breakdown"
	KindCrossSubsystemCorrelation  DetectorKind = "cross_subsystem_correlation"
	KindVarietyOverload            DetectorKind = "variety_overload"
	KindControlLoopOscillation     DetectorKind = "control_loop_oscillation"
	KindRecursiveInstability       DetectorKind = "recursive_instability"
	KindAlgedonicStorm             DetectorKind = "algedonic_storm"
	KindPainEscalation             DetectorKind = "pain_escalation"
	KindPleasureSaturation         DetectorKind = "pleasure_saturation"
)

// Valid reports whether k is one of the closed detector kinds.
func (k DetectorKind) Valid() bool {
	switch k {
	case KindRateBurst, KindRateThreshold, KindErrorCascade, KindStateTransitionSequence,
		KindStatisticalAnomaly, KindBehaviorAnomaly, KindCoordinationBreakdown,
		KindCrossSubsystemCorrelation, KindVarietyOverload, KindControlLoopOscillation,
		KindRecursiveInstability, KindAlgedonicStorm, KindPainEscalation, KindPleasureSaturation:
		return true
	default:
		return false
	}
}

// VSMScale is a per-subsystem (window, slide, threshold_multiplier) triple
// used to weight variety-pressure computations.
type VSMScale struct {
	Window     int64 // ms
	Slide      int64 // ms
	Multiplier float64
}

// DefaultVSMScales returns the per-subsystem window/slide/multiplier table
// used to weight variety-pressure computations across the VSM hierarchy.
func DefaultVSMScales() map[Subsystem]VSMScale {
	return map[Subsystem]VSMScale{
		S1: {Window: 1_000, Slide: 100, Multiplier: 1.0},
		S2: {Window: 10_000, Slide: 1_000, Multiplier: 0.8},
		S3: {Window: 60_000, Slide: 5_000, Multiplier: 0.6},
		S4: {Window: 300_000, Slide: 30_000, Multiplier: 0.4},
		S5: {Window: 1_800_000, Slide: 180_000, Multiplier: 0.2},
	}
}

// PatternSpec is a named configuration for a registered detector. It
// declares a Kind from the closed set and a CooldownMs used to suppress
// repeat firings.
type PatternSpec struct {
	Name       string
	Kind       DetectorKind
	WindowMs   int64
	CooldownMs int64

	// Thresholds, shared across kinds where applicable; zero means "use
	// the kind's documented default" (applied by WithDefaults).
	Threshold             float64 // rate_burst count, rate_threshold per-second rate
	MinEvents             int     // error_cascade (pain_escalation uses MinPainEvents)
	MaxGapMs              int64   // error_cascade, state_transition_sequence, cascade chains
	TargetSubsystems      []Subsystem
	States                []string // state_transition_sequence
	AnomalyThreshold      float64  // statistical_anomaly std-dev multiplier
	MinSamples            int      // statistical_anomaly
	AnomalyMultiplier     float64  // behavior_anomaly
	S2FailureRate         float64  // coordination_breakdown
	CorrelationThreshold  float64  // cross_subsystem_correlation
	TimeLagMs             int64    // cross_subsystem_correlation
	VarietyThreshold      float64  // variety_overload
	MinOscillations       int      // control_loop_oscillation
	AmplitudeThreshold    float64  // control_loop_oscillation
	RecursionDepth        int      // recursive_instability
	FeedbackThreshold     float64  // recursive_instability
	PainThreshold         float64  // algedonic_storm
	DurationMs            int64    // algedonic_storm
	IntensityEscalation   float64  // algedonic_storm
	EscalationRate        float64  // pain_escalation
	MinPainEvents         int      // pain_escalation
	DiminishingReturns    float64  // pleasure_saturation
	MetricField           string   // statistical_anomaly metric field name
	TargetType            string   // rate_threshold optional type filter
}

// WithDefaults returns a copy of spec with every zero-valued, kind-relevant
// field set to its documented default.
func (spec PatternSpec) WithDefaults() PatternSpec {
	if spec.CooldownMs == 0 {
		spec.CooldownMs = 10_000
	}
	switch spec.Kind {
	case KindRateBurst:
		if spec.Threshold == 0 {
			spec.Threshold = 10
		}
		if spec.WindowMs == 0 {
			spec.WindowMs = 5_000
		}
	case KindErrorCascade:
		if spec.MinEvents == 0 {
			spec.MinEvents = 3
		}
		if spec.MaxGapMs == 0 {
			spec.MaxGapMs = 2_000
		}
	case KindStatisticalAnomaly:
		if spec.AnomalyThreshold == 0 {
			spec.AnomalyThreshold = 3.0
		}
		if spec.MinSamples == 0 {
			spec.MinSamples = 10
		}
	case KindBehaviorAnomaly:
		if spec.AnomalyMultiplier == 0 {
			spec.AnomalyMultiplier = 2.0
		}
	case KindCoordinationBreakdown:
		if spec.S2FailureRate == 0 {
			spec.S2FailureRate = 0.7
		}
	case KindCrossSubsystemCorrelation:
		if spec.CorrelationThreshold == 0 {
			spec.CorrelationThreshold = 0.7
		}
	case KindVarietyOverload:
		if spec.VarietyThreshold == 0 {
			spec.VarietyThreshold = 0.8
		}
	case KindControlLoopOscillation:
		if spec.MinOscillations == 0 {
			spec.MinOscillations = 3
		}
		if spec.AmplitudeThreshold == 0 {
			spec.AmplitudeThreshold = 0.3
		}
	case KindRecursiveInstability:
		if spec.RecursionDepth == 0 {
			spec.RecursionDepth = 3
		}
		if spec.FeedbackThreshold == 0 {
			spec.FeedbackThreshold = 0.7
		}
	case KindAlgedonicStorm:
		if spec.PainThreshold == 0 {
			spec.PainThreshold = 0.8
		}
		if spec.DurationMs == 0 {
			spec.DurationMs = 10_000
		}
		if spec.IntensityEscalation == 0 {
			spec.IntensityEscalation = 1.5
		}
	case KindPainEscalation:
		if spec.EscalationRate == 0 {
			spec.EscalationRate = 0.1
		}
		if spec.MinPainEvents == 0 {
			spec.MinPainEvents = 3
		}
	}
	return spec
}

// Evidence references the source events or summary statistics backing a
// Detection.
type Evidence struct {
	EventIDs []EventID
	Stats    map[string]float64
}

// Detection describes a single pattern occurrence.
type Detection struct {
	Pattern             string
	Kind                DetectorKind
	Timestamp           hlc.Timestamp
	Severity             Severity
	AlgedonicIntensity   *float64
	EmergencyLevel       string
	AffectedSubsystems   []Subsystem
	Evidence             Evidence
	// Fingerprint identifies "the same pattern occurrence"; the Detector
	// sets it to Pattern. Cooldown and the hourly cap are tracked per
	// registered spec name, not per Fingerprint.
	Fingerprint string
	// Category is the most common event Type among the evidence events
	// (e.g. "optimization_success", "error"). The Integrator matches it
	// directly against its pain/pleasure classification table
	// before falling back to a Kind-based default, since the classification
	// table's keys name event categories rather than DetectorKind values.
	Category string
	// Urgency is the mean Urgency across evidence events, used by the
	// Integrator's emergency-bypass decision.
	Urgency float64
}

// AlgedonicKind classifies a detection's kind as pain, pleasure, or
// neither.
type AlgedonicKind int

const (
	AlgedonicNone AlgedonicKind = iota
	AlgedonicPain
	AlgedonicPleasure
)

// SignalType is the observable type of an AlgedonicSignal.
type SignalType string

const (
	SignalPain     SignalType = "pain"
	SignalPleasure SignalType = "pleasure"
)

// AlgedonicSignal is the output of the Integrator.
type AlgedonicSignal struct {
	Type            SignalType
	Intensity       float64
	Urgency         float64
	Source          string
	Timestamp       hlc.Timestamp
	EmergencyBypass bool
	Pattern         string
	Kind            DetectorKind
	EmergencyActions []string
}

func (s AlgedonicSignal) HLC() hlc.Timestamp { return s.Timestamp }

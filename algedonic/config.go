package algedonic

// Config holds the Integrator's tunables.
type Config struct {
	// EmergencyBypassThreshold is the intensity floor above which a signal
	// always bypasses, regardless of urgency or kind.
	EmergencyBypassThreshold float64
	// TemporalDecayRate weights older history entries less in "current
	// level" queries; applied per rolling-history step.
	TemporalDecayRate float64
	// LearningRate is the EMA alpha feeding the adaptive learning
	// adjustment.
	LearningRate float64
	// HistorySize bounds the rolling pain and pleasure histories, each
	// shared across all patterns (default: last 100 of each).
	HistorySize int
	// SaturationLevel is the cumulative-pleasure crossing point above
	// which the saturation factor starts reducing pleasure intensity.
	SaturationLevel float64
	// NodeID tags this Integrator as the signal Source when none is
	// supplied by the caller.
	NodeID string
}

// DefaultConfig returns the Integrator's documented default tunables.
func DefaultConfig() Config {
	return Config{
		EmergencyBypassThreshold: 0.85,
		TemporalDecayRate:        0.02,
		LearningRate:             0.05,
		HistorySize:              100,
		SaturationLevel:          0.8,
		NodeID:                   "vsm-integrator",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EmergencyBypassThreshold == 0 {
		c.EmergencyBypassThreshold = d.EmergencyBypassThreshold
	}
	if c.TemporalDecayRate == 0 {
		c.TemporalDecayRate = d.TemporalDecayRate
	}
	if c.LearningRate == 0 {
		c.LearningRate = d.LearningRate
	}
	if c.HistorySize == 0 {
		c.HistorySize = d.HistorySize
	}
	if c.SaturationLevel == 0 {
		c.SaturationLevel = d.SaturationLevel
	}
	if c.NodeID == "" {
		c.NodeID = d.NodeID
	}
	return c
}

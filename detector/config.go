package detector

import "github.com/jmanhype/vsm-temporal-core/vsmcore"

// Config defines the detector-wide tunables.
type Config struct {
	// DefaultCooldownMs is applied by Register to specs that do not set
	// CooldownMs.
	DefaultCooldownMs int64

	// MaxDetectionsPerHour caps firings name to prevent runaway
	// amplification.
	MaxDetectionsPerHour int

	// VSMScales maps each subsystem to the window/slide/multiplier triple
	// that weights its contribution to variety-pressure computations in
	// KindVarietyOverload. Defaults to vsmcore.DefaultVSMScales().
	VSMScales map[vsmcore.Subsystem]vsmcore.VSMScale
}

// DefaultConfig returns the detector's documented default tunables.
func DefaultConfig() Config {
	return Config{
		DefaultCooldownMs:    10_000,
		MaxDetectionsPerHour: 100,
		VSMScales:            vsmcore.DefaultVSMScales(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultCooldownMs == 0 {
		c.DefaultCooldownMs = d.DefaultCooldownMs
	}
	if c.MaxDetectionsPerHour == 0 {
		c.MaxDetectionsPerHour = d.MaxDetectionsPerHour
	}
	if c.VSMScales == nil {
		c.VSMScales = d.VSMScales
	}
	return c
}

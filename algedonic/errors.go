package algedonic

import "errors"

// Integrator-level errors.
var (
	// ErrNeutralDetection is returned by Process when a detection's kind
	// and category match neither the pain nor the pleasure table: otherwise
	// neutral, no signal.
	ErrNeutralDetection = errors.New("algedonic: detection classifies as neutral, no signal")
)

package detector

import "errors"

var (
	// ErrSpecInvalid is returned by Register when a spec's Kind is not a
	// member of the closed detector-kind set.
	ErrSpecInvalid = errors.New("detector: pattern spec invalid")

	ErrUnknownSpec = errors.New("detector: no spec registered under that name")
)

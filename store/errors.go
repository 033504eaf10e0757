package store

import "errors"

// Store-level failures.
var (
	// ErrRetired is returned by Ingest when an event's timestamp is older
	// than the store's retained window.
	ErrRetired = errors.New("store: event older than retention window")

	ErrStoreClosed = errors.New("store: closed")
)

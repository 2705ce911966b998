package ddscache

import "errors"

// Sentinel errors for the cache's semantic error taxonomy. These are
// internal signals between the cache's own helpers; the public API never
// returns them — store* returns bool, load* returns (nil, false).
var (
	ErrNotFound           = errors.New("ddscache: not found")
	ErrStaleEntry         = errors.New("ddscache: stale entry")
	ErrCorruption         = errors.New("ddscache: corruption")
	ErrIOFailure          = errors.New("ddscache: io failure")
	ErrInvariantViolation = errors.New("ddscache: invariant violation")
)

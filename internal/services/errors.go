package services

import "errors"

// Validation errors are surfaced to callers; availability errors are
// absorbed into degraded candidate generation and only logged.
var (
	ErrInvalidInteractionType = errors.New("invalid interaction type")
	ErrInvalidPreferenceRange = errors.New("preference value outside [0,1]")
	ErrInvalidInputList       = errors.New("input list contains non-sanitizable entries")
	ErrInvalidHybridWeights   = errors.New("hybrid weight override must cover all five components and sum to 1.0")
	ErrModelUnavailable       = errors.New("collaborative model unavailable")
)

package domain

import "errors"

// Error kinds surfaced at the coordinator boundary. Callers match with
// errors.Is; everything else a repository returns is wrapped in
// ErrPersistence so transport layers never leak driver errors.
var (
	// ErrValidation marks malformed input. No side effects have occurred.
	ErrValidation = errors.New("invalid request")

	// ErrConflict means the requested resource/date range is no longer
	// available. Surfaced distinctly so the caller can refresh and offer
	// alternatives instead of retrying blindly. The pre-write availability
	// check and the atomic commit both produce this same kind.
	ErrConflict = errors.New("resource not available")

	// ErrCapacity means the guest count exceeds the capacity of the
	// selected property or rooms.
	ErrCapacity = errors.New("guest count exceeds capacity")

	// ErrExpired is returned when renewing a hold that has already lapsed.
	ErrExpired = errors.New("hold expired")

	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps store failures other than the exclusion
	// constraint rejecting a write.
	ErrPersistence = errors.New("storage failure")
)

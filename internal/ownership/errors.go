package ownership

import "errors"

var (
	// ErrNotHolder is returned when a participant releases a lock it does not hold.
	ErrNotHolder = errors.New("ownership: participant is not the lock holder")

	// ErrDuplicateRequest is returned when an Exclusive request for an entity is
	// issued while the same participant already has one outstanding.
	ErrDuplicateRequest = errors.New("ownership: exclusive request already outstanding")

	// ErrInvalidRequest is returned for requests with a missing entity, an unknown
	// kind, or a participant the coordinator cannot answer for.
	ErrInvalidRequest = errors.New("ownership: invalid lock request")

	// ErrTransportFailure wraps delivery errors surfaced to callers.
	ErrTransportFailure = errors.New("ownership: transport failure")

	// ErrInvariantViolation signals protocol corruption, e.g. two Exclusive
	// holders reported for one entity.
	ErrInvariantViolation = errors.New("ownership: invariant violation")
)

package device

import "errors"

// Registry errors. Check with errors.Is:
//
//	if errors.Is(err, device.ErrOwnershipLimitExceeded) {
//	    // caller already owns MaxOwned devices
//	}
var (
	// ErrDuplicateID is returned when the candidate identifier is already registered.
	ErrDuplicateID = errors.New("device: duplicate id")

	// ErrOwnershipLimitExceeded is returned when the owner already holds MaxOwned devices.
	ErrOwnershipLimitExceeded = errors.New("device: ownership limit exceeded")

	// ErrCounterOverflow is returned when the global device count cannot be incremented.
	ErrCounterOverflow = errors.New("device: counter overflow")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidID is returned when an identifier string cannot be parsed.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidOwner is returned for an empty owner reference.
	ErrInvalidOwner = errors.New("device: invalid owner")

	// ErrStoreContention is returned when an optimistic store gives up
	// after repeated conflicting writes.
	ErrStoreContention = errors.New("device: store contention")
)

package device

import (
	"context"
	"math"
)

// Store is the registry's transactional state.
//
// Implementations must make TryCommit indivisible: concurrent callers
// observe either the full effect of a commit or none of it.
type Store interface {
	// Contains reports whether id is registered.
	Contains(ctx context.Context, id ID) (bool, error)

	// Get returns the record for id, or ErrDeviceNotFound.
	Get(ctx context.Context, id ID) (Record, error)

	// OwnedBy returns the owner's device ids in registration order.
	// An owner with no devices yields an empty slice.
	OwnedBy(ctx context.Context, owner Owner) ([]ID, error)

	// Count returns the number of registered devices.
	Count(ctx context.Context) (uint64, error)

	// TryCommit registers rec if its id is unused, the counter can be
	// incremented, and the owner holds fewer than MaxOwned devices.
	// Otherwise it returns ErrDuplicateID, ErrCounterOverflow or
	// ErrOwnershipLimitExceeded (checked in that order) and changes nothing.
	TryCommit(ctx context.Context, rec Record) error
}

// checkCommit applies the commit preconditions in order against a
// snapshot read inside the store's exclusive section.
func checkCommit(exists bool, count uint64, owned, maxOwned int) error {
	if exists {
		return ErrDuplicateID
	}
	if count == math.MaxUint64 {
		return ErrCounterOverflow
	}
	if owned >= maxOwned {
		return ErrOwnershipLimitExceeded
	}
	return nil
}

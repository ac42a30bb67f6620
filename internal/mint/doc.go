// Package mint registers new devices.
//
// Service.Register is the registry's single state transition:
//
//  1. take the next sequencer slot (round, call index)
//  2. draw entropy for the context tag
//  3. derive the candidate identifier from entropy and slot
//  4. commit the record through the device.Store
//  5. on success, notify subscribers and return the identifier
//
// The whole sequence runs inside the slot, so registrations are applied
// and announced one at a time in commit order. A failed commit changes
// nothing and its error is returned unchanged; callers match it with
// errors.Is against the device package sentinels. Register never retries
// on its own, including after ErrDuplicateID.
package mint

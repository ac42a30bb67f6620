// Package device holds the device identity model and the registry stores.
//
// A device is nothing more than a 128-bit identifier bound to the account
// that registered it. The registry keeps three pieces of state behind a
// Store:
//
//   - devices: ID → Record, every key unique
//   - the owner index: Owner → ordered []ID, at most MaxOwned entries
//   - count: the number of records, a uint64 that never wraps
//
// Store.TryCommit is the only write. It checks, in order, that the id is
// unused, that the counter can be incremented, and that the owner is below
// MaxOwned; only then does it insert the record, append to the owner index
// and bump the counter. Any failure leaves all three untouched.
//
// Four backends implement Store: MemoryStore (tests, single process),
// SQLiteStore (default), RedisStore and EtcdStore (shared deployments).
//
// Generator derives candidate identifiers from entropy and the sequencer
// slot; see identifier.go.
package device

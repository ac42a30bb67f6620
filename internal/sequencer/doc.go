// Package sequencer serialises registry calls and stamps each with a slot.
//
// A Slot is the pair (Round, Index): the round advances on a fixed
// interval and the index counts calls within the round. The pair is fed
// into identifier generation, so two calls never share a slot even when
// they draw identical entropy.
//
// Loop is the production sequencer: one goroutine executes submitted work
// in arrival order. Manual is a mutex-based sequencer whose rounds only
// move when told to, for tests and replay.
package sequencer

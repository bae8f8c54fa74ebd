// Package chain implements the action chain model and the record
// resolver.
//
// A logically mutable record is a chain of immutable actions. The create
// action's address is the record's original address. Each update names the
// action it supersedes as its predecessor, and a delete is an action that
// names its target the same way. Nothing is ever removed.
//
// The current state of a record is never stored. The resolver derives it
// on every read by following forward references one hop at a time:
//
//	create(A0) <- update(A1) <- update(A2)      head is A2
//	create(A0) <- update(A1) <- delete(D)       deleted
//	create(A0) <- update(A1)                    forked at A0
//	           <- update(A1')
//
// Forks are reported with every candidate and never resolved.
package chain

// Package ir holds the canonical representation shared by every other
// package: the constrained value model, RFC 8785 canonical JSON, content
// hashing, and the Entry, Action, Record and Details types.
//
// ir imports nothing internal. Every other package may import it.
//
// Constraints on hashed data:
//   - no floats; numbers are int64
//   - no nulls; absent fields are omitted
//   - strings are NFC normalized at the serialization boundary
//   - ordering uses logical sequence numbers, never wall-clock time
package ir

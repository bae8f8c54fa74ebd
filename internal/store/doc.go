// Package store defines content-addressed storage for entries and actions.
//
// A store is append-only. Every object is stored under the hash of its
// canonical form, so writing the same object twice is a no-op and nothing
// is ever removed. Deletion is an action like any other.
//
// # Contract
//
//   - PutEntry, PutAction: idempotent, return the object's address
//   - InsertAction: PutAction that also reports whether the action was new
//   - Get: the record at an address, nil when unknown
//   - GetDetails: the record plus its one-hop forward references
//
// Forward references are actions whose predecessor is the address, and are
// always returned in ORDER BY seq ASC, address ASC so that every backend
// gives the same answer for the same history.
//
// # Backends
//
//   - sqlite: single file, WAL mode, the default
//   - memory: maps behind a RWMutex, for tests and ephemeral use
//   - postgres: pgx pool for shared deployments
//
// The cache package wraps any backend with a read-through object cache.
package store

package store

import (
	"context"
	"errors"

	"github.com/roach88/blogchain/internal/ir"
)

// ErrMissingReference is returned by PutAction when the action names an
// entry or predecessor the store does not hold.
var ErrMissingReference = errors.New("store: missing reference")

// ErrAlgorithmMismatch is returned when a store is reopened with a hash
// algorithm other than the one it was created with.
var ErrAlgorithmMismatch = errors.New("store: hash algorithm mismatch")

// ContentStore is the storage contract the chain model and resolver need.
type ContentStore interface {
	// PutEntry stores e and returns its address.
	PutEntry(ctx context.Context, e ir.Entry) (ir.Address, error)

	// PutAction stores a and returns its address. The entry and
	// predecessor it references must already be stored.
	PutAction(ctx context.Context, a ir.Action) (ir.Address, error)

	// InsertAction is PutAction that also reports whether a was newly
	// stored. It is false when an identical action was already present.
	InsertAction(ctx context.Context, a ir.Action) (ir.Address, bool, error)

	// Get returns the record at addr, or nil if nothing is stored there.
	Get(ctx context.Context, addr ir.Address) (*ir.Record, error)

	// GetDetails returns the details at addr, or nil if nothing is stored
	// there.
	GetDetails(ctx context.Context, addr ir.Address) (ir.Details, error)
}

// Backend is a ContentStore with the extra operations tools need.
type Backend interface {
	ContentStore

	// MaxSeq returns the highest action seq stored, or 0.
	MaxSeq(ctx context.Context) (int64, error)

	// Agent returns the identity that authors this store's actions.
	Agent() string

	// Hasher returns the hasher the store addresses objects with.
	Hasher() ir.Hasher

	// ScanEntries calls fn for every entry in address order.
	ScanEntries(ctx context.Context, fn func(ir.Address, ir.Entry) error) error

	// ScanActions calls fn for every action in seq, address order.
	ScanActions(ctx context.Context, fn func(ir.Address, ir.Action) error) error

	Close() error
}

// Options configures a backend when it is opened.
type Options struct {
	// HashAlgorithm is used when the store is created. Reopening a store
	// under a different algorithm fails with ErrAlgorithmMismatch. Empty
	// means "whatever the store already uses", or SHA256 for a new store.
	HashAlgorithm ir.HashAlgorithm

	// Agent overrides the stored agent identity. Empty keeps the stored
	// one, or generates a new one for a new store.
	Agent string
}

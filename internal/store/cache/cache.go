// Package cache wraps a store.Backend with a read-through cache of
// records by address.
//
// Only Get is cached. A record at an address never changes, so entries
// never need invalidation. Details are not cached: the forward references
// of an action grow as updates and deletes are appended.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// Cache holds encoded records by address.
type Cache interface {
	Get(ctx context.Context, addr ir.Address) ([]byte, bool, error)
	Set(ctx context.Context, addr ir.Address, data []byte) error
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// Store is a store.Backend whose Get goes through a Cache.
type Store struct {
	store.Backend
	cache  Cache
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// Wrap returns b with reads cached in c. A nil logger uses slog.Default.
func Wrap(b store.Backend, c Cache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Backend: b, cache: c, logger: logger}
}

// Get returns the record at addr, from the cache when possible. Cache
// failures are logged and fall back to the backend. Absent addresses are
// not cached since they may be written later.
func (s *Store) Get(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	data, ok, err := s.cache.Get(ctx, addr)
	if err != nil {
		s.errors.Add(1)
		s.logger.Warn("cache read failed", "address", addr.Short(), "error", err)
	}
	if ok {
		var rec ir.Record
		if err := json.Unmarshal(data, &rec); err == nil {
			s.hits.Add(1)
			return &rec, nil
		}
		s.errors.Add(1)
		s.logger.Warn("cache entry undecodable", "address", addr.Short())
	}

	s.misses.Add(1)
	rec, err := s.Backend.Get(ctx, addr)
	if err != nil || rec == nil {
		return rec, err
	}
	if payload, err := json.Marshal(rec); err == nil {
		if err := s.cache.Set(ctx, addr, payload); err != nil {
			s.errors.Add(1)
			s.logger.Warn("cache write failed", "address", addr.Short(), "error", err)
		}
	}
	return rec, nil
}

// Stats returns lookup counters since Wrap.
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Errors: s.errors.Load()}
}

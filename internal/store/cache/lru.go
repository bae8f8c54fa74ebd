package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/blogchain/internal/ir"
)

// LRU is an in-process Cache bounded by entry count.
type LRU struct {
	c *lru.Cache[ir.Address, []byte]
}

// NewLRU returns a cache holding at most size records.
func NewLRU(size int) (*LRU, error) {
	c, err := lru.New[ir.Address, []byte](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}

// Get implements Cache.
func (l *LRU) Get(_ context.Context, addr ir.Address) ([]byte, bool, error) {
	data, ok := l.c.Get(addr)
	return data, ok, nil
}

// Set implements Cache.
func (l *LRU) Set(_ context.Context, addr ir.Address, data []byte) error {
	l.c.Add(addr, data)
	return nil
}

// Len returns the number of cached records.
func (l *LRU) Len() int { return l.c.Len() }

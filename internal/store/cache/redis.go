package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// KeyPrefix is the leading part of every cached record key.
const KeyPrefix = "blogchain:record:"

// Namespace identifies b's address space in a shared Redis: its hash
// algorithm and agent. Stores that differ in either never share keys.
func Namespace(b store.Backend) string {
	return string(b.Hasher().Algorithm()) + ":" + b.Agent()
}

// Redis is a Cache shared by every process pointed at the same server and
// using the same namespace.
type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedis returns a cache on client keyed under namespace, usually
// Namespace of the wrapped backend. A zero ttl keeps records until Redis
// evicts them.
func NewRedis(client *redis.Client, namespace string, ttl time.Duration) *Redis {
	return &Redis{client: client, namespace: namespace, ttl: ttl}
}

// Key returns the Redis key holding addr.
func (r *Redis) Key(addr ir.Address) string {
	return KeyPrefix + r.namespace + ":" + string(addr)
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, addr ir.Address) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.Key(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, addr ir.Address, data []byte) error {
	return r.client.Set(ctx, r.Key(addr), data, r.ttl).Err()
}

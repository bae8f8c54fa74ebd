package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/blogchain/internal/blog"
	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/schema"
	"github.com/roach88/blogchain/internal/store"
	"github.com/roach88/blogchain/internal/store/memory"
)

// FixedAgent is the author identity used when a test does not pick one.
const FixedAgent = "00000000-0000-7000-8000-000000000001"

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Env is a blog service over a fresh memory store with a deterministic
// clock and a fixed agent. Two Envs fed the same calls hold identical
// addresses.
type Env struct {
	Store   *memory.Store
	Clock   *DeterministicClock
	Service *blog.Service
}

// NewEnv builds an Env. An empty agent selects FixedAgent and an empty
// alg selects SHA256.
func NewEnv(ctx context.Context, agent string, alg ir.HashAlgorithm) (*Env, error) {
	if agent == "" {
		agent = FixedAgent
	}
	st, err := memory.New(store.Options{HashAlgorithm: alg, Agent: agent})
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	v, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	clock := NewDeterministicClock()
	svc, err := blog.New(ctx, st, v, blog.Options{Clock: clock, Logger: DiscardLogger()})
	if err != nil {
		return nil, err
	}
	return &Env{Store: st, Clock: clock, Service: svc}, nil
}

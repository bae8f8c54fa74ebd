package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/blogchain/internal/blog"
	"github.com/roach88/blogchain/internal/config"
	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/schema"
	"github.com/roach88/blogchain/internal/store"
	"github.com/roach88/blogchain/internal/store/cache"
	"github.com/roach88/blogchain/internal/store/memory"
	"github.com/roach88/blogchain/internal/store/postgres"
	"github.com/roach88/blogchain/internal/store/sqlite"
)

// session is an opened backend with the service on top of it.
type session struct {
	backend store.Backend
	service *blog.Service
	cache   *cache.Store
	closers []func() error
	logger  *slog.Logger
}

// openBackend opens the configured driver without the cache.
func openBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
	opts := store.Options{
		HashAlgorithm: ir.HashAlgorithm(cfg.HashAlgorithm),
		Agent:         cfg.Agent,
	}
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Path, opts)
	case "memory":
		return memory.New(opts)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN, opts)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg := opts.Config
	b, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	s := &session{backend: b, closers: []func() error{b.Close}, logger: opts.Logger}

	switch cfg.Cache.Kind {
	case "lru":
		lru, err := cache.NewLRU(cfg.Cache.Size)
		if err != nil {
			s.Close()
			return nil, WrapExitError(ExitCommandError, "failed to create cache", err)
		}
		s.cache = cache.Wrap(b, lru, opts.Logger)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		s.closers = append(s.closers, client.Close)
		s.cache = cache.Wrap(b, cache.NewRedis(client, cache.Namespace(b), cfg.Cache.TTL), opts.Logger)
	}
	if s.cache != nil {
		s.backend = s.cache
	}

	v, err := schema.New()
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load entry schema", err)
	}
	svc, err := blog.New(ctx, s.backend, v, blog.Options{
		MaxHops: cfg.Resolve.MaxHops,
		Logger:  opts.Logger,
	})
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start service", err)
	}
	s.service = svc

	opts.Logger.Debug("store opened",
		"driver", cfg.Store.Driver,
		"hash", b.Hasher().Algorithm(),
		"agent", b.Agent(),
		"cache", cfg.Cache.Kind,
	)
	return s, nil
}

// Close releases everything in reverse order of opening.
func (s *session) Close() error {
	if s.cache != nil {
		st := s.cache.Stats()
		s.logger.Debug("record cache", "hits", st.Hits, "misses", st.Misses, "errors", st.Errors)
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// withSession sets up, opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	if err := opts.ensureSetup(cmd); err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			opts.Logger.Warn("closing store failed", "error", cerr)
		}
	}()
	return fn(ctx, s)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

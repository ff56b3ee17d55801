package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"archplan/internal/config"
)

const redisPrefix = "archplan:"

// Open builds the store selected by cfg.Driver. The sqlite driver requires
// entries. The returned close func is never nil.
func Open(ctx context.Context, cfg config.CacheConfig, entries EntryStore, logger *slog.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nop := func() error { return nil }
	switch cfg.Driver {
	case "", config.CacheMemory:
		m, err := NewMemory(cfg.Size)
		if err != nil {
			return nil, nop, err
		}
		return m, nop, nil
	case config.CacheNone:
		return Noop{}, nop, nil
	case config.CacheSQLite:
		if entries == nil {
			return nil, nop, fmt.Errorf("cache driver %s requires a database", cfg.Driver)
		}
		s := NewSQL(entries)
		if n, err := s.Purge(ctx); err != nil {
			logger.WarnContext(ctx, "purge expired cache entries failed", "error", err)
		} else if n > 0 {
			logger.DebugContext(ctx, "purged expired cache entries", "count", n)
		}
		return s, nop, nil
	case config.CacheRedis:
		r, err := OpenRedis(cfg.RedisURL, redisPrefix)
		if err != nil {
			return nil, nop, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			logger.WarnContext(ctx, "redis cache unreachable; entries will miss until it recovers", "error", err)
		}
		return r, r.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

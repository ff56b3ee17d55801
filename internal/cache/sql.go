package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// purgeEvery is the number of writes between opportunistic purges of
// expired rows.
const purgeEvery = 64

// EntryStore is the persistence surface required by SQL; repo.Repo satisfies it.
type EntryStore interface {
	GetCacheEntry(ctx context.Context, key string, now time.Time) ([]byte, bool, error)
	PutCacheEntry(ctx context.Context, key string, value []byte, expiresAt *time.Time) error
	PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error)
}

// SQL keeps entries in the workspace database.
type SQL struct {
	entries EntryStore
	writes  atomic.Int64
	Now     func() time.Time
}

func NewSQL(entries EntryStore) *SQL {
	return &SQL{entries: entries, Now: time.Now}
}

func (s *SQL) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.entries.GetCacheEntry(ctx, key, s.now())
}

// Set stores value and, every purgeEvery writes, drops expired rows. A failed
// purge is left for the next one.
func (s *SQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := s.now().Add(ttl)
		expiresAt = &t
	}
	if err := s.entries.PutCacheEntry(ctx, key, value, expiresAt); err != nil {
		return err
	}
	if s.writes.Add(1)%purgeEvery == 0 {
		_, _ = s.Purge(ctx)
	}
	return nil
}

// Purge deletes rows whose expiry has passed and reports how many went.
func (s *SQL) Purge(ctx context.Context) (int64, error) {
	return s.entries.PurgeExpiredCache(ctx, s.now())
}

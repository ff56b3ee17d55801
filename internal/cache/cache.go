// Package cache holds the key/value stores used to memoize needs analyses and
// composed projects, plus a tolerant JSON layer that never fails its caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"
)

// Store is the cache collaborator. A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Hash digests the parts with length prefixes so ("ab","c") and ("a","bc")
// never collide.
func Hash(parts ...string) string {
	h := sha256.New()
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(parts)))
	h.Write(size[:])
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// JSON wraps a Store, encoding values as JSON. Store and codec faults are
// logged and reported as a miss (Load) or ignored (Save).
type JSON struct {
	Store  Store
	Logger *slog.Logger
}

func NewJSON(store Store, logger *slog.Logger) JSON {
	if store == nil {
		store = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return JSON{Store: store, Logger: logger}
}

// Load decodes the cached value for key into out and reports whether it was found.
func (c JSON) Load(ctx context.Context, key string, out any) bool {
	if c.Store == nil {
		return false
	}
	data, ok, err := c.Store.Get(ctx, key)
	if err != nil {
		c.logger().WarnContext(ctx, "cache get failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger().WarnContext(ctx, "cache entry undecodable", "key", key, "error", err)
		return false
	}
	return true
}

// Save stores v under key for ttl.
func (c JSON) Save(ctx context.Context, key string, v any, ttl time.Duration) {
	if c.Store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger().WarnContext(ctx, "cache entry unencodable", "key", key, "error", err)
		return
	}
	if err := c.Store.Set(ctx, key, data, ttl); err != nil {
		c.logger().WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

func (c JSON) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }

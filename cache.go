package randomx

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

// cacheState is the engine cache shared by every owner.
type cacheState struct {
	eng    engine.Engine
	handle engine.CacheHandle
	flags  Flags
	rc     *refCount
}

// Cache holds the key-derived RandomX cache (about 256 MiB with the default
// engine parameters). A Cache is read-only once created and may be shared by
// any number of Datasets and VMs across goroutines.
//
// Each *Cache value is one owner of the underlying memory; Clone adds an
// owner and Close drops one. The memory is released when the last owner,
// including any Dataset or VM built from it, is gone.
type Cache struct {
	state  *cacheState
	closed atomic.Bool
}

// NewCache allocates a cache and derives its contents from key. It blocks
// until the derivation is complete.
func NewCache(flags Flags, key []byte) (*Cache, error) {
	const op = "NewCache"
	if len(key) == 0 {
		return nil, newError(KindParameter, op, "key must not be empty")
	}

	eng := backend
	handle := eng.AllocCache(uint32(flags))
	if handle == nil {
		return nil, newError(KindCreation, op, "failed to allocate cache with flags "+flags.String())
	}

	began := time.Now()
	eng.InitCache(handle, key)
	Logger().Debug("cache initialized",
		zap.Stringer("flags", flags),
		zap.Int("key_len", len(key)),
		zap.Duration("elapsed", time.Since(began)))

	s := &cacheState{eng: eng, handle: handle, flags: flags}
	s.rc = newRefCount(func() {
		eng.ReleaseCache(handle)
		Logger().Debug("cache released", zap.Stringer("flags", flags))
	})
	return &Cache{state: s}, nil
}

// Clone returns a new owner of the same cache.
func (c *Cache) Clone() (*Cache, error) {
	s, err := c.retain("Cache.Clone")
	if err != nil {
		return nil, err
	}
	return &Cache{state: s}, nil
}

// Close drops this owner. It is safe to call more than once.
func (c *Cache) Close() error {
	if c != nil && c.closed.CompareAndSwap(false, true) {
		c.state.rc.drop()
	}
	return nil
}

// Flags returns the flags the cache was allocated with.
func (c *Cache) Flags() Flags {
	return c.state.flags
}

// retain adds an internal owner for a Dataset or VM.
func (c *Cache) retain(op string) (*cacheState, error) {
	if c == nil {
		return nil, newError(KindParameter, op, "cache is nil")
	}
	if c.closed.Load() || !c.state.rc.acquire() {
		return nil, closedError(op)
	}
	return c.state, nil
}

package randomx

import (
	"crypto/subtle"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mode selects how a Hasher computes dataset items.
type Mode int

const (
	// LightMode computes dataset items from the Cache on the fly. It needs
	// about 256 MiB but hashes several times slower.
	LightMode Mode = iota

	// FastMode builds the full Dataset (a little over 2 GiB) once and hashes
	// from it.
	FastMode
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case LightMode:
		return "LightMode"
	case FastMode:
		return "FastMode"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Config specifies the configuration for a Hasher.
type Config struct {
	// Mode determines memory usage and performance characteristics.
	Mode Mode

	// Flags selects engine features. FlagFullMem is implied by FastMode and
	// must not be set for LightMode. Use RecommendedFlags for the host's
	// defaults.
	Flags Flags

	// CacheKey is the seed used to generate the cache and dataset.
	// In Monero, this changes every 2048 blocks (~2.8 days).
	// Must not be nil or empty.
	CacheKey []byte

	// MaxIdleVMs bounds the number of VMs kept between calls. Zero means
	// runtime.GOMAXPROCS(0).
	MaxIdleVMs int
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if len(c.CacheKey) == 0 {
		return newError(KindParameter, op, "cache key must not be empty")
	}
	switch c.Mode {
	case LightMode:
		if c.Flags.Has(FlagFullMem) {
			return newError(KindFlagConfig, op, "FLAG_FULL_MEM set in LightMode")
		}
	case FastMode:
	default:
		return newError(KindParameter, op, fmt.Sprintf("invalid mode: %v", c.Mode))
	}
	if c.MaxIdleVMs < 0 {
		return newError(KindParameter, op, fmt.Sprintf("negative MaxIdleVMs: %d", c.MaxIdleVMs))
	}
	return nil
}

func (c *Config) vmFlags() Flags {
	if c.Mode == FastMode {
		return c.Flags | FlagFullMem
	}
	return c.Flags
}

// Hasher computes RandomX hashes over one key. It owns a Cache, a Dataset
// in FastMode and a pool of VMs, and is safe for concurrent use.
type Hasher struct {
	mu      sync.RWMutex // protects the fields below; held for reading while a VM is checked out
	config  Config
	cache   *Cache
	dataset *Dataset
	pool    *vmPool
	closed  bool
}

// New creates a new Hasher with the specified configuration.
// The returned Hasher must be closed with Close() to free resources.
func New(config Config) (*Hasher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.CacheKey = append([]byte(nil), config.CacheKey...)
	if config.MaxIdleVMs == 0 {
		config.MaxIdleVMs = runtime.GOMAXPROCS(0)
	}

	cache, dataset, err := buildResources(&config, config.CacheKey)
	if err != nil {
		return nil, fmt.Errorf("randomx: hasher initialization: %w", err)
	}

	h := &Hasher{config: config, cache: cache, dataset: dataset}
	h.pool = newVMPool(config.MaxIdleVMs, h.newVM)
	Logger().Debug("hasher ready",
		zap.Stringer("mode", config.Mode),
		zap.Stringer("flags", config.vmFlags()),
		zap.Int("max_idle_vms", config.MaxIdleVMs))
	return h, nil
}

// buildResources creates the Cache and, in FastMode, the Dataset for key.
func buildResources(config *Config, key []byte) (*Cache, *Dataset, error) {
	cacheFlags := config.Flags &^ FlagFullMem
	cache, err := NewCache(cacheFlags, key)
	if err != nil {
		return nil, nil, err
	}
	if config.Mode != FastMode {
		return cache, nil, nil
	}
	dataset, err := NewDataset(config.vmFlags(), cache, 0)
	if err != nil {
		cache.Close()
		return nil, nil, err
	}
	return cache, dataset, nil
}

// newVM creates a VM bound to the current resources. Callers hold h.mu.
func (h *Hasher) newVM() (*VM, error) {
	if h.config.Mode == FastMode {
		return NewVM(h.config.vmFlags(), nil, h.dataset)
	}
	return NewVM(h.config.vmFlags(), h.cache, nil)
}

// Hash computes the RandomX hash of input.
// This method is safe for concurrent use by multiple goroutines.
func (h *Hasher) Hash(input []byte) ([HashSize]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return [HashSize]byte{}, closedError("Hasher.Hash")
	}
	vm, err := h.pool.get()
	if err != nil {
		return [HashSize]byte{}, err
	}
	defer h.pool.put(vm)
	return vm.Hash(input)
}

// HashSet computes the hashes of inputs on one VM using the pipelined
// engine calls. The result has one digest per input, in order.
func (h *Hasher) HashSet(inputs [][]byte) ([][HashSize]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, closedError("Hasher.HashSet")
	}
	vm, err := h.pool.get()
	if err != nil {
		return nil, err
	}
	defer h.pool.put(vm)
	return vm.HashSet(inputs)
}

// UpdateCacheKey switches the Hasher to a new key, rebuilding the Cache and,
// in FastMode, the Dataset, then rebinding every pooled VM. This is an
// expensive operation. It returns nil without doing anything if newKey
// equals the current key.
//
// On error, the Hasher remains in its previous state and can continue to be
// used with the old key.
func (h *Hasher) UpdateCacheKey(newKey []byte) error {
	const op = "Hasher.UpdateCacheKey"
	if len(newKey) == 0 {
		return newError(KindParameter, op, "cache key must not be empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return closedError(op)
	}
	if subtle.ConstantTimeCompare(h.config.CacheKey, newKey) == 1 {
		return nil
	}

	began := time.Now()
	cache, dataset, err := buildResources(&h.config, newKey)
	if err != nil {
		return fmt.Errorf("randomx: cache regeneration: %w", err)
	}

	err = h.pool.each(func(vm *VM) error {
		if dataset != nil {
			return vm.SetDataset(dataset)
		}
		return vm.SetCache(cache)
	})
	if err != nil {
		// Some VMs may already point at the new resources; discard them all
		// so the pool refills from the old ones.
		h.pool.drain()
		if dataset != nil {
			dataset.Close()
		}
		cache.Close()
		return fmt.Errorf("randomx: rebinding pooled VMs: %w", err)
	}

	if h.dataset != nil {
		h.dataset.Close()
	}
	h.cache.Close()
	h.cache, h.dataset = cache, dataset
	h.config.CacheKey = append([]byte(nil), newKey...)

	idle, _ := h.pool.stats()
	Logger().Debug("cache key updated",
		zap.Stringer("mode", h.config.Mode),
		zap.Int("rebound_vms", idle),
		zap.Duration("elapsed", time.Since(began)))
	return nil
}

// Close releases all resources held by the Hasher. Calls after Close
// return an error wrapping ErrClosed.
func (h *Hasher) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.pool.drain()

	if h.dataset != nil {
		h.dataset.Close()
		h.dataset = nil
	}
	if h.cache != nil {
		h.cache.Close()
		h.cache = nil
	}
	return nil
}

// IsReady returns true if the Hasher is ready to compute hashes.
func (h *Hasher) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

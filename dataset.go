package randomx

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

// datasetState is the engine dataset shared by every owner. It owns a
// reference to the cache it was built from for its whole lifetime.
type datasetState struct {
	eng       engine.Engine
	handle    engine.DatasetHandle
	flags     Flags
	itemCount uint32
	start     uint32
	cache     *cacheState
	rc        *refCount
}

// Dataset is the precomputed RandomX dataset used by VMs created with
// FlagFullMem (a little over 2 GiB with the default engine parameters).
// Ownership works as for Cache.
type Dataset struct {
	state  *datasetState
	closed atomic.Bool
}

// DatasetItemCount returns the number of 64-byte items in a dataset.
func DatasetItemCount() (uint32, error) {
	return itemCount(backend, "DatasetItemCount")
}

func itemCount(eng engine.Engine, op string) (uint32, error) {
	n := eng.DatasetItemCount()
	if n == 0 {
		return 0, newError(KindOther, op, "engine reported zero dataset items")
	}
	if n > math.MaxUint32 {
		return 0, newError(KindConversion, op, fmt.Sprintf("dataset item count %d does not fit in uint32", n))
	}
	return uint32(n), nil
}

// NewDataset allocates a dataset and computes items [start, item count) from
// cache. It blocks until initialization is complete, which takes tens of
// seconds with the default engine parameters. Items below start are left
// uninitialized.
//
// The dataset keeps cache alive until the dataset itself is released; the
// caller may Close its own Cache owner at any time.
func NewDataset(flags Flags, cache *Cache, start uint32) (*Dataset, error) {
	const op = "NewDataset"
	cs, err := cache.retain(op)
	if err != nil {
		return nil, err
	}

	eng := cs.eng
	count, err := itemCount(eng, op)
	if err != nil {
		cs.rc.drop()
		return nil, err
	}
	if start >= count {
		cs.rc.drop()
		return nil, newError(KindCreation, op, fmt.Sprintf("start item %d is not below item count %d", start, count))
	}

	handle := eng.AllocDataset(uint32(flags))
	if handle == nil {
		cs.rc.drop()
		return nil, newError(KindCreation, op, "failed to allocate dataset with flags "+flags.String())
	}

	began := time.Now()
	eng.InitDataset(handle, cs.handle, uint64(start), uint64(count-start))
	Logger().Debug("dataset initialized",
		zap.Stringer("flags", flags),
		zap.Uint32("start", start),
		zap.Uint32("items", count-start),
		zap.Duration("elapsed", time.Since(began)))

	s := &datasetState{
		eng:       eng,
		handle:    handle,
		flags:     flags,
		itemCount: count,
		start:     start,
		cache:     cs,
	}
	s.rc = newRefCount(func() {
		eng.ReleaseDataset(handle)
		cs.rc.drop()
		Logger().Debug("dataset released", zap.Stringer("flags", flags))
	})
	return &Dataset{state: s}, nil
}

// Clone returns a new owner of the same dataset.
func (d *Dataset) Clone() (*Dataset, error) {
	s, err := d.retain("Dataset.Clone")
	if err != nil {
		return nil, err
	}
	return &Dataset{state: s}, nil
}

// Close drops this owner. It is safe to call more than once.
func (d *Dataset) Close() error {
	if d != nil && d.closed.CompareAndSwap(false, true) {
		d.state.rc.drop()
	}
	return nil
}

// ItemCount returns the item count observed when the dataset was created.
func (d *Dataset) ItemCount() uint32 {
	return d.state.itemCount
}

// Start returns the first initialized item.
func (d *Dataset) Start() uint32 {
	return d.state.start
}

// Flags returns the flags the dataset was allocated with.
func (d *Dataset) Flags() Flags {
	return d.state.flags
}

// Memory returns a copy of the dataset contents, ItemCount()*64 bytes.
func (d *Dataset) Memory() ([]byte, error) {
	const op = "Dataset.Memory"
	s, err := d.retain(op)
	if err != nil {
		return nil, err
	}
	defer s.rc.drop()

	mem := s.eng.DatasetMemory(s.handle)
	size := uint64(s.itemCount) * engine.DatasetItemSize
	if mem == nil || uint64(len(mem)) < size {
		return nil, newError(KindOther, op, "engine returned no dataset memory")
	}
	out := make([]byte, size)
	copy(out, mem)
	return out, nil
}

func (d *Dataset) retain(op string) (*datasetState, error) {
	if d == nil {
		return nil, newError(KindParameter, op, "dataset is nil")
	}
	if d.closed.Load() || !d.state.rc.acquire() {
		return nil, closedError(op)
	}
	return d.state, nil
}

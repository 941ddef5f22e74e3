package randomx

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

// fakeEngine is an engine.Engine that records every call and reports
// lifecycle violations: use after release, double release, releasing a cache
// or dataset that a live resource still points at, and pipeline misuse.
// Digests are SHA-256 over the bound key and the input.
type fakeEngine struct {
	mu sync.Mutex

	itemCount   uint64
	failCache   bool
	failDataset bool
	failVM      bool
	nilMemory   bool
	zeroInput   []byte
	initStart   uint64
	initCount   uint64
	calls       []string
	caches      []*fakeCache
	datasets    []*fakeDataset
	vms         []*fakeVM
	violations  []string
	recommended uint32
}

type fakeCache struct {
	key      []byte
	released bool
}

type fakeDataset struct {
	cache    *fakeCache
	mem      []byte
	released bool
}

type fakeVM struct {
	full      bool
	cache     *fakeCache
	dataset   *fakeDataset
	pending   []byte
	primed    bool
	destroyed bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{itemCount: 16}
}

// withBackend installs e as the package engine for the duration of t.
func withBackend(t testing.TB, e engine.Engine) {
	t.Helper()
	old := backend
	backend = e
	t.Cleanup(func() { backend = old })
}

func (f *fakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) violate(format string, args ...interface{}) {
	f.violations = append(f.violations, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) Flags() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("flags")
	return f.recommended
}

func (f *fakeEngine) AllocCache(flags uint32) engine.CacheHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("alloc_cache")
	if f.failCache {
		return nil
	}
	c := &fakeCache{}
	f.caches = append(f.caches, c)
	return c
}

func (f *fakeEngine) InitCache(h engine.CacheHandle, key []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("init_cache")
	c := h.(*fakeCache)
	if len(key) == 0 {
		f.violate("init_cache with empty key")
	}
	c.key = append([]byte(nil), key...)
}

func (f *fakeEngine) ReleaseCache(h engine.CacheHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("release_cache")
	c := h.(*fakeCache)
	if c.released {
		f.violate("cache released twice")
	}
	for _, d := range f.datasets {
		if !d.released && d.cache == c {
			f.violate("cache released under a live dataset")
		}
	}
	for _, vm := range f.vms {
		if !vm.destroyed && vm.cache == c {
			f.violate("cache released under a live vm")
		}
	}
	c.released = true
}

func (f *fakeEngine) AllocDataset(flags uint32) engine.DatasetHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("alloc_dataset")
	if f.failDataset {
		return nil
	}
	d := &fakeDataset{mem: make([]byte, f.itemCount*engine.DatasetItemSize)}
	f.datasets = append(f.datasets, d)
	return d
}

func (f *fakeEngine) DatasetItemCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("dataset_item_count")
	return f.itemCount
}

func (f *fakeEngine) InitDataset(dh engine.DatasetHandle, ch engine.CacheHandle, start, count uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("init_dataset")
	d, c := dh.(*fakeDataset), ch.(*fakeCache)
	if c.released {
		f.violate("init_dataset from a released cache")
	}
	if start+count > f.itemCount {
		f.violate("init_dataset range [%d, %d) exceeds %d items", start, start+count, f.itemCount)
		return
	}
	f.initStart, f.initCount = start, count
	d.cache = c
	sum := sha256.Sum256(c.key)
	for i := start * engine.DatasetItemSize; i < (start+count)*engine.DatasetItemSize; i++ {
		d.mem[i] = sum[i%sha256.Size]
	}
}

func (f *fakeEngine) DatasetMemory(dh engine.DatasetHandle) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("dataset_memory")
	d := dh.(*fakeDataset)
	if d.released {
		f.violate("dataset memory read after release")
	}
	if f.nilMemory {
		return nil
	}
	return d.mem
}

func (f *fakeEngine) ReleaseDataset(dh engine.DatasetHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("release_dataset")
	d := dh.(*fakeDataset)
	if d.released {
		f.violate("dataset released twice")
	}
	for _, vm := range f.vms {
		if !vm.destroyed && vm.dataset == d {
			f.violate("dataset released under a live vm")
		}
	}
	d.released = true
}

func (f *fakeEngine) CreateVM(flags uint32, ch engine.CacheHandle, dh engine.DatasetHandle) engine.VMHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_vm")
	if f.failVM {
		return nil
	}
	vm := &fakeVM{full: flags&engine.FlagFullMem != 0}
	if c, ok := ch.(*fakeCache); ok && c != nil {
		vm.cache = c
	}
	if d, ok := dh.(*fakeDataset); ok && d != nil {
		vm.dataset = d
	}
	if vm.full && vm.dataset == nil || !vm.full && vm.cache == nil {
		f.violate("create_vm without the binding its mode needs")
	}
	f.vms = append(f.vms, vm)
	return vm
}

func (f *fakeEngine) SetVMCache(vh engine.VMHandle, ch engine.CacheHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_vm_cache")
	vm := vh.(*fakeVM)
	if vm.full {
		f.violate("set_vm_cache on a full-memory vm")
	}
	vm.cache = ch.(*fakeCache)
}

func (f *fakeEngine) SetVMDataset(vh engine.VMHandle, dh engine.DatasetHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_vm_dataset")
	vm := vh.(*fakeVM)
	if !vm.full {
		f.violate("set_vm_dataset on a light vm")
	}
	vm.dataset = dh.(*fakeDataset)
}

func (f *fakeEngine) DestroyVM(vh engine.VMHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("destroy_vm")
	vm := vh.(*fakeVM)
	if vm.destroyed {
		f.violate("vm destroyed twice")
	}
	if vm.primed {
		f.violate("vm destroyed in the middle of a hash sequence")
	}
	vm.destroyed = true
}

// digest computes the fake hash of input on vm. Callers hold f.mu.
func (f *fakeEngine) digest(vm *fakeVM, input []byte, out *[engine.HashSize]byte) {
	if vm.destroyed {
		f.violate("hash on a destroyed vm")
	}
	var key []byte
	if vm.full {
		if vm.dataset.released {
			f.violate("hash on a released dataset")
		}
		key = vm.dataset.mem[:engine.HashSize]
	} else {
		if vm.cache.released {
			f.violate("hash on a released cache")
		}
		key = vm.cache.key
	}
	if f.zeroInput != nil && bytes.Equal(input, f.zeroInput) {
		*out = [engine.HashSize]byte{}
		return
	}
	h := sha256.New()
	h.Write(key)
	h.Write(input)
	copy(out[:], h.Sum(nil))
}

func (f *fakeEngine) CalculateHash(vh engine.VMHandle, input []byte, out *[engine.HashSize]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("hash")
	vm := vh.(*fakeVM)
	if vm.primed {
		f.violate("hash while a sequence is in progress")
	}
	f.digest(vm, input, out)
}

func (f *fakeEngine) CalculateHashFirst(vh engine.VMHandle, input []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("hash_first")
	vm := vh.(*fakeVM)
	if vm.primed {
		f.violate("hash_first while a sequence is in progress")
	}
	vm.pending = append([]byte(nil), input...)
	vm.primed = true
}

func (f *fakeEngine) CalculateHashNext(vh engine.VMHandle, next []byte, out *[engine.HashSize]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("hash_next")
	vm := vh.(*fakeVM)
	if !vm.primed {
		f.violate("hash_next without hash_first")
	}
	f.digest(vm, vm.pending, out)
	vm.pending = append([]byte(nil), next...)
}

func (f *fakeEngine) CalculateHashLast(vh engine.VMHandle, out *[engine.HashSize]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("hash_last")
	vm := vh.(*fakeVM)
	if !vm.primed {
		f.violate("hash_last without hash_first")
	}
	f.digest(vm, vm.pending, out)
	vm.pending, vm.primed = nil, false
}

// callsSince returns the calls recorded after the first n, joined by spaces.
func (f *fakeEngine) callsSince(n int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.calls[n:], " ")
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// live returns the number of caches, datasets and VMs not yet released.
func (f *fakeEngine) live() (caches, datasets, vms int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.caches {
		if !c.released {
			caches++
		}
	}
	for _, d := range f.datasets {
		if !d.released {
			datasets++
		}
	}
	for _, vm := range f.vms {
		if !vm.destroyed {
			vms++
		}
	}
	return caches, datasets, vms
}

// checkClean fails t if a violation was recorded.
func (f *fakeEngine) checkClean(t testing.TB) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.violations {
		t.Errorf("engine violation: %s", v)
	}
}

// checkReleased fails t if a violation was recorded or any resource is
// still alive.
func (f *fakeEngine) checkReleased(t testing.TB) {
	t.Helper()
	f.checkClean(t)
	if c, d, v := f.live(); c+d+v != 0 {
		t.Errorf("live resources: %d caches, %d datasets, %d vms", c, d, v)
	}
}

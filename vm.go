package randomx

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

// HashSize is the size of a RandomX digest in bytes.
const HashSize = engine.HashSize

// VM is a RandomX virtual machine. A VM created with FlagFullMem reads a
// Dataset; any other VM computes dataset items from a Cache.
//
// The VM keeps every Cache and Dataset it was given alive until it is
// rebound or closed. Calls on one VM are serialized; use one VM per
// goroutine for parallel hashing.
type VM struct {
	mu      sync.Mutex
	eng     engine.Engine
	handle  engine.VMHandle
	flags   Flags
	cache   *cacheState
	dataset *datasetState
	closed  bool
}

// NewVM creates a VM. Without FlagFullMem cache is required; with
// FlagFullMem dataset is required. Any other resource supplied is retained
// as well.
func NewVM(flags Flags, cache *Cache, dataset *Dataset) (*VM, error) {
	const op = "NewVM"
	full := flags.Has(FlagFullMem)
	switch {
	case cache == nil && dataset == nil:
		return nil, newError(KindCreation, op, "neither cache nor dataset supplied")
	case !full && cache == nil:
		return nil, newError(KindFlagConfig, op, "a VM without FLAG_FULL_MEM needs a cache")
	case full && dataset == nil:
		return nil, newError(KindFlagConfig, op, "a VM with FLAG_FULL_MEM needs a dataset")
	}

	vm := &VM{flags: flags}
	var ch engine.CacheHandle
	var dh engine.DatasetHandle
	if cache != nil {
		cs, err := cache.retain(op)
		if err != nil {
			return nil, err
		}
		vm.cache, vm.eng, ch = cs, cs.eng, cs.handle
	}
	if dataset != nil {
		ds, err := dataset.retain(op)
		if err != nil {
			vm.dropBindings()
			return nil, err
		}
		vm.dataset, vm.eng, dh = ds, ds.eng, ds.handle
	}

	vm.handle = vm.eng.CreateVM(uint32(flags), ch, dh)
	if vm.handle == nil {
		vm.dropBindings()
		return nil, newError(KindCreation, op, "failed to create VM with flags "+flags.String())
	}
	Logger().Debug("vm created", zap.Stringer("flags", flags))
	return vm, nil
}

// Flags returns the flags the VM was created with.
func (vm *VM) Flags() Flags {
	return vm.flags
}

// FullMem reports whether the VM reads a Dataset.
func (vm *VM) FullMem() bool {
	return vm.flags.Has(FlagFullMem)
}

// SetCache rebinds a light-mode VM to cache, typically after a key change.
// The previously bound cache is released by this VM.
func (vm *VM) SetCache(cache *Cache) error {
	const op = "VM.SetCache"
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.closed {
		return closedError(op)
	}
	if vm.FullMem() {
		return newError(KindFlagConfig, op, "VM was created with FLAG_FULL_MEM")
	}
	cs, err := cache.retain(op)
	if err != nil {
		return err
	}

	vm.eng.SetVMCache(vm.handle, cs.handle)
	old := vm.cache
	vm.cache = cs
	if old != nil {
		old.rc.drop()
	}
	return nil
}

// SetDataset rebinds a full-mode VM to dataset.
func (vm *VM) SetDataset(dataset *Dataset) error {
	const op = "VM.SetDataset"
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.closed {
		return closedError(op)
	}
	if !vm.FullMem() {
		return newError(KindFlagConfig, op, "VM was created without FLAG_FULL_MEM")
	}
	ds, err := dataset.retain(op)
	if err != nil {
		return err
	}

	vm.eng.SetVMDataset(vm.handle, ds.handle)
	old := vm.dataset
	vm.dataset = ds
	if old != nil {
		old.rc.drop()
	}
	return nil
}

// Hash returns the digest of input.
//
// The engine has no error channel, so an all-zero digest is treated as a
// failure and reported as an error of KindOther.
func (vm *VM) Hash(input []byte) ([HashSize]byte, error) {
	const op = "VM.Hash"
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.closed {
		return [HashSize]byte{}, closedError(op)
	}
	return vm.hash(op, input)
}

func (vm *VM) hash(op string, input []byte) ([HashSize]byte, error) {
	if len(input) == 0 {
		return [HashSize]byte{}, newError(KindParameter, op, "input must not be empty")
	}
	var out [HashSize]byte
	vm.eng.CalculateHash(vm.handle, input, &out)
	if out == ([HashSize]byte{}) {
		return out, newError(KindOther, op, "engine produced an all-zero digest")
	}
	return out, nil
}

// HashSet returns the digests of inputs in order. Each digest equals
// Hash(inputs[i]); sets of two or more inputs are pipelined through the
// engine so that one input is prepared while the previous one finishes.
func (vm *VM) HashSet(inputs [][]byte) ([][HashSize]byte, error) {
	const op = "VM.HashSet"
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.closed {
		return nil, closedError(op)
	}
	if len(inputs) == 0 {
		return nil, newError(KindParameter, op, "input set must not be empty")
	}
	if len(inputs) == 1 {
		d, err := vm.hash(op, inputs[0])
		if err != nil {
			return nil, err
		}
		return [][HashSize]byte{d}, nil
	}

	p := hashPipeline{eng: vm.eng, vm: vm.handle}
	out := make([][HashSize]byte, 0, len(inputs))
	for i, in := range inputs {
		if len(in) == 0 {
			p.drain()
			return nil, newError(KindParameter, op, fmt.Sprintf("input %d is empty", i))
		}
		if i == 0 {
			p.start(in)
			continue
		}
		d := p.advance(in)
		if d == ([HashSize]byte{}) {
			p.drain()
			return nil, newError(KindOther, op, fmt.Sprintf("engine produced an all-zero digest for input %d", i-1))
		}
		out = append(out, d)
	}

	d := p.finish()
	if d == ([HashSize]byte{}) {
		return nil, newError(KindOther, op, fmt.Sprintf("engine produced an all-zero digest for input %d", len(inputs)-1))
	}
	return append(out, d), nil
}

// Close destroys the VM and releases its Cache and Dataset references. It
// is safe to call more than once.
func (vm *VM) Close() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.closed {
		return nil
	}
	vm.closed = true
	vm.eng.DestroyVM(vm.handle)
	vm.handle = nil
	vm.dropBindings()
	Logger().Debug("vm destroyed", zap.Stringer("flags", vm.flags))
	return nil
}

func (vm *VM) dropBindings() {
	if vm.dataset != nil {
		vm.dataset.rc.drop()
		vm.dataset = nil
	}
	if vm.cache != nil {
		vm.cache.rc.drop()
		vm.cache = nil
	}
}

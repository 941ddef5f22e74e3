//go:build randomx && cgo

package native

/*
#cgo LDFLAGS: -lrandomx -lstdc++ -lm -lpthread
#include <stdlib.h>
#include <randomx.h>
*/
import "C"

import (
	"unsafe"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

type cacheHandle struct{ p *C.randomx_cache }

type datasetHandle struct{ p *C.randomx_dataset }

type vmHandle struct{ p *C.randomx_vm }

// Engine calls into librandomx. The zero value is ready to use.
type Engine struct{}

var _ engine.Engine = Engine{}

// New returns the librandomx engine.
func New() Engine { return Engine{} }

func (Engine) Flags() uint32 {
	return uint32(C.randomx_get_flags())
}

func (Engine) AllocCache(flags uint32) engine.CacheHandle {
	p := C.randomx_alloc_cache(C.randomx_flags(flags))
	if p == nil {
		return nil
	}
	return &cacheHandle{p: p}
}

func (Engine) InitCache(c engine.CacheHandle, key []byte) {
	C.randomx_init_cache(cachePtr(c), unsafe.Pointer(&key[0]), C.size_t(len(key)))
}

func (Engine) ReleaseCache(c engine.CacheHandle) {
	if h, ok := c.(*cacheHandle); ok && h != nil && h.p != nil {
		C.randomx_release_cache(h.p)
		h.p = nil
	}
}

func (Engine) AllocDataset(flags uint32) engine.DatasetHandle {
	p := C.randomx_alloc_dataset(C.randomx_flags(flags))
	if p == nil {
		return nil
	}
	return &datasetHandle{p: p}
}

func (Engine) DatasetItemCount() uint64 {
	return uint64(C.randomx_dataset_item_count())
}

func (Engine) InitDataset(d engine.DatasetHandle, c engine.CacheHandle, start, count uint64) {
	C.randomx_init_dataset(datasetPtr(d), cachePtr(c), C.ulong(start), C.ulong(count))
}

func (e Engine) DatasetMemory(d engine.DatasetHandle) []byte {
	p := C.randomx_get_dataset_memory(datasetPtr(d))
	if p == nil {
		return nil
	}
	n := e.DatasetItemCount() * engine.DatasetItemSize
	return unsafe.Slice((*byte)(p), n)
}

func (Engine) ReleaseDataset(d engine.DatasetHandle) {
	if h, ok := d.(*datasetHandle); ok && h != nil && h.p != nil {
		C.randomx_release_dataset(h.p)
		h.p = nil
	}
}

func (Engine) CreateVM(flags uint32, c engine.CacheHandle, d engine.DatasetHandle) engine.VMHandle {
	p := C.randomx_create_vm(C.randomx_flags(flags), cachePtr(c), datasetPtr(d))
	if p == nil {
		return nil
	}
	return &vmHandle{p: p}
}

func (Engine) SetVMCache(vm engine.VMHandle, c engine.CacheHandle) {
	C.randomx_vm_set_cache(vmPtr(vm), cachePtr(c))
}

func (Engine) SetVMDataset(vm engine.VMHandle, d engine.DatasetHandle) {
	C.randomx_vm_set_dataset(vmPtr(vm), datasetPtr(d))
}

func (Engine) DestroyVM(vm engine.VMHandle) {
	if h, ok := vm.(*vmHandle); ok && h != nil && h.p != nil {
		C.randomx_destroy_vm(h.p)
		h.p = nil
	}
}

func (Engine) CalculateHash(vm engine.VMHandle, input []byte, out *[engine.HashSize]byte) {
	C.randomx_calculate_hash(vmPtr(vm), unsafe.Pointer(&input[0]), C.size_t(len(input)), unsafe.Pointer(&out[0]))
}

func (Engine) CalculateHashFirst(vm engine.VMHandle, input []byte) {
	C.randomx_calculate_hash_first(vmPtr(vm), unsafe.Pointer(&input[0]), C.size_t(len(input)))
}

func (Engine) CalculateHashNext(vm engine.VMHandle, next []byte, out *[engine.HashSize]byte) {
	C.randomx_calculate_hash_next(vmPtr(vm), unsafe.Pointer(&next[0]), C.size_t(len(next)), unsafe.Pointer(&out[0]))
}

func (Engine) CalculateHashLast(vm engine.VMHandle, out *[engine.HashSize]byte) {
	C.randomx_calculate_hash_last(vmPtr(vm), unsafe.Pointer(&out[0]))
}

func cachePtr(c engine.CacheHandle) *C.randomx_cache {
	if h, ok := c.(*cacheHandle); ok && h != nil {
		return h.p
	}
	return nil
}

func datasetPtr(d engine.DatasetHandle) *C.randomx_dataset {
	if h, ok := d.(*datasetHandle); ok && h != nil {
		return h.p
	}
	return nil
}

func vmPtr(vm engine.VMHandle) *C.randomx_vm {
	if h, ok := vm.(*vmHandle); ok && h != nil {
		return h.p
	}
	return nil
}

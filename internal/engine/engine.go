// Package engine defines the contract between the resource layer and a
// RandomX hashing engine.
//
// The contract mirrors the C API of the reference library one call per
// method. Handles are opaque values owned by the engine implementation; a nil
// handle returned from an allocation is the only failure signal the contract
// provides. Callers are responsible for validating parameters (non-empty key
// and input, dataset ranges) before calling in, and for releasing every handle
// exactly once.
package engine

const (
	// HashSize is the size of a digest in bytes.
	HashSize = 32

	// DatasetItemSize is the size of one dataset item in bytes.
	DatasetItemSize = 64
)

// Flag bits understood by every engine. The values match randomx_flags.
const (
	FlagDefault     uint32 = 0
	FlagLargePages  uint32 = 1 << 0
	FlagHardAES     uint32 = 1 << 1
	FlagFullMem     uint32 = 1 << 2
	FlagJIT         uint32 = 1 << 3
	FlagSecure      uint32 = 1 << 4
	FlagArgon2SSSE3 uint32 = 1 << 5
	FlagArgon2AVX2  uint32 = 1 << 6
	FlagArgon2      uint32 = FlagArgon2SSSE3 | FlagArgon2AVX2
)

// CacheHandle is an engine-owned cache. nil means no cache.
type CacheHandle interface{}

// DatasetHandle is an engine-owned dataset. nil means no dataset.
type DatasetHandle interface{}

// VMHandle is an engine-owned virtual machine. nil means no VM.
type VMHandle interface{}

// Engine is the RandomX engine contract.
//
// Cache and dataset handles are read-only once initialized and may be used
// by many VMs from different goroutines. A VM handle must only be used by one
// goroutine at a time.
type Engine interface {
	// Flags returns the flags recommended for the host. It never fails.
	Flags() uint32

	// AllocCache reserves cache memory. Returns nil on failure.
	AllocCache(flags uint32) CacheHandle
	// InitCache derives the cache contents from key. key must not be empty.
	InitCache(c CacheHandle, key []byte)
	// ReleaseCache frees cache memory.
	ReleaseCache(c CacheHandle)

	// AllocDataset reserves dataset memory. Returns nil on failure.
	AllocDataset(flags uint32) DatasetHandle
	// DatasetItemCount returns the total number of dataset items, 0 on failure.
	DatasetItemCount() uint64
	// InitDataset fills items [start, start+count) from c. The range must
	// already be validated against DatasetItemCount.
	InitDataset(d DatasetHandle, c CacheHandle, start, count uint64)
	// DatasetMemory returns the dataset memory, nil on failure. The slice
	// aliases engine memory and is only valid until ReleaseDataset.
	DatasetMemory(d DatasetHandle) []byte
	// ReleaseDataset frees dataset memory.
	ReleaseDataset(d DatasetHandle)

	// CreateVM allocates a VM bound to c (light mode) or d (FlagFullMem).
	// Returns nil on failure.
	CreateVM(flags uint32, c CacheHandle, d DatasetHandle) VMHandle
	// SetVMCache rebinds a light-mode VM.
	SetVMCache(vm VMHandle, c CacheHandle)
	// SetVMDataset rebinds a full-mode VM.
	SetVMDataset(vm VMHandle, d DatasetHandle)
	// DestroyVM frees the VM.
	DestroyVM(vm VMHandle)

	// CalculateHash writes the digest of input to out.
	CalculateHash(vm VMHandle, input []byte, out *[HashSize]byte)
	// CalculateHashFirst primes the VM with the first input of a sequence.
	CalculateHashFirst(vm VMHandle, input []byte)
	// CalculateHashNext primes the VM with next and writes the digest of the
	// previously primed input to out.
	CalculateHashNext(vm VMHandle, next []byte, out *[HashSize]byte)
	// CalculateHashLast writes the digest of the previously primed input.
	CalculateHashLast(vm VMHandle, out *[HashSize]byte)
}

package purego

import (
	"errors"
	"fmt"
)

// Params holds the engine constants. DefaultParams matches the RandomX
// configuration used by Monero; tests use much smaller values so a full
// cache/dataset/VM cycle runs in milliseconds.
type Params struct {
	// ArgonMemory is the cache size in 1 KiB Argon2 blocks.
	ArgonMemory uint32
	// ArgonIterations is the number of Argon2d passes over the cache.
	ArgonIterations uint32
	// ArgonSalt is the Argon2 salt.
	ArgonSalt []byte

	// CacheAccesses is the number of SuperscalarHash programs per dataset item.
	CacheAccesses int
	// SuperscalarLatency is the target latency of a SuperscalarHash program in cycles.
	SuperscalarLatency int

	// DatasetBaseSize and DatasetExtraSize give the dataset size in bytes.
	DatasetBaseSize  uint64
	DatasetExtraSize uint64

	// Scratchpad level sizes in bytes. Each must be a power of two.
	ScratchpadL1 uint32
	ScratchpadL2 uint32
	ScratchpadL3 uint32

	// ProgramSize is the number of instructions per program.
	ProgramSize int
	// ProgramIterations is how many times each program loop runs.
	ProgramIterations int
	// ProgramCount is the number of chained programs per hash.
	ProgramCount int
}

// DefaultParams returns the RandomX v1 parameters.
func DefaultParams() Params {
	return Params{
		ArgonMemory:        262144,
		ArgonIterations:    3,
		ArgonSalt:          []byte("RandomX\x03"),
		CacheAccesses:      8,
		SuperscalarLatency: 170,
		DatasetBaseSize:    2147483648,
		DatasetExtraSize:   33554368,
		ScratchpadL1:       16384,
		ScratchpadL2:       262144,
		ScratchpadL3:       2097152,
		ProgramSize:        256,
		ProgramIterations:  2048,
		ProgramCount:       8,
	}
}

// Validate checks that the parameters describe a usable engine.
func (p Params) Validate() error {
	if p.ArgonMemory < 8 || p.ArgonMemory%syncPoints != 0 {
		return fmt.Errorf("purego: argon memory must be a multiple of %d and at least 8 blocks, got %d", syncPoints, p.ArgonMemory)
	}
	if p.ArgonIterations == 0 {
		return errors.New("purego: argon iterations must be positive")
	}
	if len(p.ArgonSalt) < 8 {
		return errors.New("purego: argon salt must be at least 8 bytes")
	}
	if p.CacheAccesses <= 0 {
		return errors.New("purego: cache accesses must be positive")
	}
	if p.SuperscalarLatency <= 0 {
		return errors.New("purego: superscalar latency must be positive")
	}
	if p.DatasetBaseSize < itemSize || p.DatasetBaseSize&(p.DatasetBaseSize-1) != 0 {
		return fmt.Errorf("purego: dataset base size must be a power of two >= %d, got %d", itemSize, p.DatasetBaseSize)
	}
	if p.DatasetExtraSize%itemSize != 0 {
		return fmt.Errorf("purego: dataset extra size must be a multiple of %d, got %d", itemSize, p.DatasetExtraSize)
	}
	for _, sp := range []uint32{p.ScratchpadL1, p.ScratchpadL2, p.ScratchpadL3} {
		if sp < itemSize || sp&(sp-1) != 0 {
			return fmt.Errorf("purego: scratchpad level sizes must be powers of two >= %d, got %d", itemSize, sp)
		}
	}
	if !(p.ScratchpadL1 <= p.ScratchpadL2 && p.ScratchpadL2 <= p.ScratchpadL3) {
		return errors.New("purego: scratchpad levels must satisfy L1 <= L2 <= L3")
	}
	if p.ProgramSize <= 0 || p.ProgramIterations <= 0 || p.ProgramCount <= 0 {
		return errors.New("purego: program size, iterations and count must be positive")
	}
	return nil
}

func (p Params) cacheSize() uint64 {
	return uint64(p.ArgonMemory) * blockSize
}

func (p Params) cacheItems() uint64 {
	return p.cacheSize() / itemSize
}

func (p Params) datasetItems() uint64 {
	return (p.DatasetBaseSize + p.DatasetExtraSize) / itemSize
}

//go:build !randomx || !cgo

package randomx

import "github.com/opd-ai/go-randomx-safe/internal/engine/purego"

// referenceEngine reports whether digests can be compared with the
// published RandomX vectors.
const referenceEngine = false

// setupTestBackend shrinks the portable engine so that caches and datasets
// take milliseconds to build.
func setupTestBackend() {
	e, err := purego.New(purego.Params{
		ArgonMemory:        64,
		ArgonIterations:    2,
		ArgonSalt:          []byte("RandomX\x03"),
		CacheAccesses:      4,
		SuperscalarLatency: 24,
		DatasetBaseSize:    1 << 14,
		DatasetExtraSize:   3 * 64,
		ScratchpadL1:       1 << 10,
		ScratchpadL2:       1 << 12,
		ScratchpadL3:       1 << 14,
		ProgramSize:        48,
		ProgramIterations:  24,
		ProgramCount:       3,
	})
	if err != nil {
		panic(err)
	}
	backend = e
}

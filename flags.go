package randomx

import (
	"fmt"
	"strings"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

// Flags selects engine features. The bit values are those of the RandomX
// C library's randomx_flags.
type Flags uint32

const (
	// FlagDefault selects the portable code paths and light mode.
	FlagDefault = Flags(engine.FlagDefault)
	// FlagLargePages allocates memory with huge pages.
	FlagLargePages = Flags(engine.FlagLargePages)
	// FlagHardAES uses hardware AES instructions.
	FlagHardAES = Flags(engine.FlagHardAES)
	// FlagFullMem selects fast mode: VMs read a precomputed Dataset instead of
	// computing dataset items from a Cache.
	FlagFullMem = Flags(engine.FlagFullMem)
	// FlagJIT compiles programs to machine code.
	FlagJIT = Flags(engine.FlagJIT)
	// FlagSecure keeps JIT pages W^X. Only meaningful with FlagJIT.
	FlagSecure = Flags(engine.FlagSecure)
	// FlagArgon2SSSE3 uses SSSE3 for the Argon2 cache fill.
	FlagArgon2SSSE3 = Flags(engine.FlagArgon2SSSE3)
	// FlagArgon2AVX2 uses AVX2 for the Argon2 cache fill.
	FlagArgon2AVX2 = Flags(engine.FlagArgon2AVX2)
	// FlagArgon2 is FlagArgon2SSSE3|FlagArgon2AVX2.
	FlagArgon2 = Flags(engine.FlagArgon2)
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagLargePages, "FLAG_LARGE_PAGES"},
	{FlagHardAES, "FLAG_HARD_AES"},
	{FlagFullMem, "FLAG_FULL_MEM"},
	{FlagJIT, "FLAG_JIT"},
	{FlagSecure, "FLAG_SECURE"},
	{FlagArgon2SSSE3, "FLAG_ARGON2_SSSE3"},
	{FlagArgon2AVX2, "FLAG_ARGON2_AVX2"},
}

// RecommendedFlags returns the flags the engine recommends for this host.
// The result never contains FlagLargePages or FlagFullMem; add them
// explicitly when wanted.
func RecommendedFlags() Flags {
	return Flags(backend.Flags())
}

// Has reports whether every bit of g is set in f.
func (f Flags) Has(g Flags) bool {
	return f&g == g
}

// Union returns f|g.
func (f Flags) Union(g Flags) Flags {
	return f | g
}

// String renders f as FLAG_ names joined with '|'.
func (f Flags) String() string {
	if f == FlagDefault {
		return "FLAG_DEFAULT"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

package purego

import (
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

// recommendedFlags reports the hardware features of the host. Large pages,
// full memory and secure mode are never recommended, and there is no JIT.
func recommendedFlags() uint32 {
	flags := engine.FlagDefault
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAES {
			flags |= engine.FlagHardAES
		}
		switch {
		case cpu.X86.HasAVX2:
			flags |= engine.FlagArgon2AVX2
		case cpu.X86.HasSSSE3:
			flags |= engine.FlagArgon2SSSE3
		}
	case "arm64":
		if cpu.ARM64.HasAES {
			flags |= engine.FlagHardAES
		}
	}
	return flags
}

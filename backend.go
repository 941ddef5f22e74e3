package randomx

import "github.com/opd-ai/go-randomx-safe/internal/engine"

// backend is the engine every resource in this package is created on. It is
// chosen at build time: librandomx with -tags randomx and cgo, the pure Go
// engine otherwise.
var backend engine.Engine = defaultBackend()

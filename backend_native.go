//go:build randomx && cgo

package randomx

import (
	"github.com/opd-ai/go-randomx-safe/internal/engine"
	"github.com/opd-ai/go-randomx-safe/internal/engine/native"
)

func defaultBackend() engine.Engine { return native.New() }

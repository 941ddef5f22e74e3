// Package native binds the reference RandomX C library (librandomx) to the
// engine contract.
//
// The binding is only compiled with cgo and the `randomx` build tag:
//
//	go build -tags randomx ./...
//
// librandomx and its headers must be installed where the C toolchain can find
// them (CGO_CFLAGS / CGO_LDFLAGS may point at a custom prefix).
package native

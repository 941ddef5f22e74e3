// Package randomx manages the resources of the RandomX proof-of-work hash
// and runs hashes on them safely.
//
// A Cache is derived from a key. A Dataset is precomputed from a Cache for
// fast mode. A VM is bound to one of them and computes digests. Cache and
// Dataset memory is reference counted: every Dataset and VM built on a
// resource keeps it alive, so callers may Close their own handles in any
// order.
//
//	cache, err := randomx.NewCache(randomx.RecommendedFlags(), key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cache.Close()
//
//	vm, err := randomx.NewVM(randomx.RecommendedFlags(), cache, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vm.Close()
//
//	digest, err := vm.Hash([]byte("block data"))
//
// HashSet hashes several inputs on one VM with the engine's pipelined calls.
// Hasher wraps all of the above behind a pool of VMs for concurrent callers.
//
// Builds with the tag randomx and cgo enabled link the reference librandomx
// library. Other builds use a portable Go engine that follows the same
// contract but does not reproduce the reference digests.
//
// Setting RANDOMX_DEBUG=1 enables a development zap logger; see SetLogger.
package randomx

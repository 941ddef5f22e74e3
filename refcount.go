package randomx

import "sync/atomic"

// refCount tracks the owners of an engine resource and runs release once,
// when the last owner drops it.
type refCount struct {
	n       atomic.Int64
	release func()
}

func newRefCount(release func()) *refCount {
	rc := &refCount{release: release}
	rc.n.Store(1)
	return rc
}

// acquire adds an owner. It fails once the count has reached zero.
func (rc *refCount) acquire() bool {
	for {
		n := rc.n.Load()
		if n <= 0 {
			return false
		}
		if rc.n.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// drop removes an owner and releases the resource when none remain.
func (rc *refCount) drop() {
	if rc.n.Add(-1) == 0 {
		rc.release()
	}
}

func (rc *refCount) owners() int64 {
	return rc.n.Load()
}

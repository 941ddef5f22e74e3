package purego

import "unsafe"

// cacheLineSize is the alignment of every buffer handed out by alloc.
const cacheLineSize = 64

// alloc returns a zeroed, cache-line aligned buffer of size bytes and the
// function that frees it. With largePages set the buffer is backed by huge
// pages when the platform supports them; a nil buffer reports that the
// request could not be served.
func alloc(size uint64, largePages bool) ([]byte, func()) {
	if largePages {
		return allocLargePages(size)
	}
	if size > uint64(maxInt-cacheLineSize) {
		return nil, nil
	}

	buf := make([]byte, int(size)+cacheLineSize)
	off := 0
	if rem := uintptr(unsafe.Pointer(&buf[0])) % cacheLineSize; rem != 0 {
		off = cacheLineSize - int(rem)
	}
	return buf[off : off+int(size)], func() {}
}

const maxInt = int(^uint(0) >> 1)

// asBlocks reinterprets an aligned buffer whose length is a multiple of
// blockSize as Argon2 blocks.
func asBlocks(buf []byte) []block {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*block)(unsafe.Pointer(&buf[0])), len(buf)/blockSize)
}

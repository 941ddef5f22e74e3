//go:build linux

package purego

import "golang.org/x/sys/unix"

const hugePageSize = 2 << 20

// allocLargePages maps anonymous memory backed by 2 MiB huge pages. It fails
// (nil buffer) when the kernel has no huge pages reserved.
func allocLargePages(size uint64) ([]byte, func()) {
	if size == 0 {
		return nil, nil
	}
	rounded := (size + hugePageSize - 1) &^ (hugePageSize - 1)
	if rounded > uint64(maxInt) {
		return nil, nil
	}

	buf, err := unix.Mmap(-1, 0, int(rounded),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB)
	if err != nil {
		return nil, nil
	}
	return buf[:size], func() { _ = unix.Munmap(buf) }
}

//go:build !linux

package purego

// allocLargePages always fails outside Linux.
func allocLargePages(uint64) ([]byte, func()) {
	return nil, nil
}

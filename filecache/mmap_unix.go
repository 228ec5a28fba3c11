//go:build linux || darwin

package filecache

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile opens path and memory-maps its full length read-only. A
// zero-length file is reported with a nil data slice and a nil unmap
// closure, since there is nothing to map.
func mapFile(path string) (data []byte, unmap func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if fi.IsDir() {
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	size := fi.Size()
	if size == 0 {
		return nil, nil, nil
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap: %w", err)
	}

	unmap = func() error {
		return unix.Munmap(mapped)
	}
	return mapped, unmap, nil
}

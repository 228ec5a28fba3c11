//go:build windows

package filecache

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapFile opens path and memory-maps its full length read-only using a
// Windows file mapping object. A zero-length file is reported with a nil
// data slice and a nil unmap closure.
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

	h := windows.Handle(f.Fd())
	mapping, err := windows.CreateFileMapping(h, nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("CreateFileMapping: %w", err)
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, nil, fmt.Errorf("MapViewOfFile: %w", err)
	}

	mapped := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))

	unmap = func() error {
		err := windows.UnmapViewOfFile(addr)
		windows.CloseHandle(mapping)
		return err
	}
	return mapped, unmap, nil
}

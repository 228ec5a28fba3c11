//go:build windows

package filesystem

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// DiskFreeInfo reports block-device free-space statistics for the
// filesystem backing path, trimmed from the teacher's StatFS probe.
type DiskFreeInfo struct {
	BlockSize   uint64
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
}

// DiskFree reports free-space statistics for the filesystem backing path.
// Logged once at Server.Start.
func (LocalFilesystem) DiskFree(path string) (DiskFreeInfo, error) {
	var freeBytesAvailable, totalNumberOfBytes, totalNumberOfFreeBytes uint64
	drive, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return DiskFreeInfo{}, fmt.Errorf("encoding path %s: %w", path, err)
	}
	if err := windows.GetDiskFreeSpaceEx(drive, &freeBytesAvailable, &totalNumberOfBytes, &totalNumberOfFreeBytes); err != nil {
		return DiskFreeInfo{}, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", path, err)
	}

	const bsize = uint64(4096)
	return DiskFreeInfo{
		BlockSize:   bsize,
		Blocks:      totalNumberOfBytes / bsize,
		BlocksFree:  totalNumberOfFreeBytes / bsize,
		BlocksAvail: freeBytesAvailable / bsize,
	}, nil
}

//go:build linux || darwin

package filesystem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskFreeInfo reports block-device free-space statistics for the
// filesystem backing path, trimmed from the teacher's StatFS probe.
type DiskFreeInfo struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	BlocksAvail uint64
}

// DiskFree reports free-space statistics for the filesystem backing path.
// Logged once at Server.Start.
func (LocalFilesystem) DiskFree(path string) (DiskFreeInfo, error) {
	var statfs unix.Statfs_t
	if err := unix.Statfs(path, &statfs); err != nil {
		return DiskFreeInfo{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return DiskFreeInfo{
		BlockSize:   uint64(statfs.Bsize),
		Blocks:      statfs.Blocks,
		BlocksFree:  statfs.Bfree,
		BlocksAvail: statfs.Bavail,
	}, nil
}

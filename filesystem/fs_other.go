//go:build !linux && !darwin && !windows

package filesystem

import (
	"fmt"
	"runtime"
)

// DiskFreeInfo reports block-device free-space statistics for the
// filesystem backing path, trimmed from the teacher's StatFS probe.
type DiskFreeInfo struct {
	BlockSize   uint64
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
}

// DiskFree is unsupported on platforms without a wired statfs syscall path.
func (LocalFilesystem) DiskFree(path string) (DiskFreeInfo, error) {
	return DiskFreeInfo{}, fmt.Errorf("disk free space unsupported on %s", runtime.GOOS)
}

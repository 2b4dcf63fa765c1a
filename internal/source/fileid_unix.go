//go:build unix

package source

import (
	"os"
	"syscall"
)

// deviceInode extracts the (device, inode) pair on unix-like platforms
// via the os.FileInfo's underlying syscall.Stat_t.
func deviceInode(info os.FileInfo) (device, inode uint64, ok bool) {
	st, match := info.Sys().(*syscall.Stat_t)
	if !match {
		return 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), true
}

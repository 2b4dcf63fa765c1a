//go:build !unix

package source

import "os"

// deviceInode has no portable equivalent outside unix-like platforms;
// FileId falls back to content hash + size only on those platforms.
func deviceInode(info os.FileInfo) (device, inode uint64, ok bool) {
	return 0, 0, false
}

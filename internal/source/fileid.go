package source

import (
	"os"

	"github.com/cespare/xxhash/v2"
)

// FileId is the identity tuple used to detect rotation (spec.md Data
// Model table): a (device, inode-or-equivalent) pair plus a content
// fingerprint over the file's leading bytes. Two FileIds are equal iff
// both components are equal, so a same-inode file whose prefix bytes
// changed (truncate-and-rewrite-in-place) is still correctly detected as
// rotated.
//
// The content hash uses github.com/cespare/xxhash/v2 (the same one-line
// xxhash.Sum64 wrapper style as arloliu-mebo/internal/hash/id.go).
type FileId struct {
	Device      uint64
	Inode       uint64
	HasDeviceID bool
	ContentHash uint64
	Size        int64
}

// Equal reports whether id and other identify the same file generation.
func (id FileId) Equal(other FileId) bool {
	if id.HasDeviceID != other.HasDeviceID {
		return false
	}
	if id.HasDeviceID && (id.Device != other.Device || id.Inode != other.Inode) {
		return false
	}
	return id.ContentHash == other.ContentHash && id.Size == other.Size
}

func computeFileId(f *os.File, info os.FileInfo, contentSampleSize int64) (FileId, error) {
	dev, inode, ok := deviceInode(info)

	if contentSampleSize <= 0 {
		contentSampleSize = 64 << 10
	}
	if contentSampleSize > info.Size() {
		contentSampleSize = info.Size()
	}

	buf := make([]byte, contentSampleSize)
	var hash uint64
	if contentSampleSize > 0 {
		n, err := f.ReadAt(buf, 0)
		if err != nil && n == 0 {
			return FileId{}, err
		}
		hash = xxhash.Sum64(buf[:n])
	}

	return FileId{
		Device:      dev,
		Inode:       inode,
		HasDeviceID: ok,
		ContentHash: hash,
		Size:        info.Size(),
	}, nil
}

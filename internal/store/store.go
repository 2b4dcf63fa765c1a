/*
Package store implements the Compressed Line Offset Store: an append-only
container mapping line index to absolute byte offset using block-delta
compression (spec.md §4.1), grounded on
original_source/src/data/compressedlinestorage.cpp's block32_* encoding,
generalized from that file's fixed 32-bit-only blocks to the spec's
"promote to a 64-bit parallel layer" rule, and on the teacher's
(mpenkov-bsearch) block-indexed scanning style for the block/offset
bookkeeping around it.
*/
package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/klogg-go/klogg/internal/kloggerr"
)

// escapeMarker flags an absolute 4-byte offset follows. The original C++
// used a 2-byte marker (0xFF as a uint16) to keep reads aligned; this
// implementation uses a single marker byte since Go has no alignment
// requirement to preserve, trimming one byte off every escaped entry.
const escapeMarker = 0xFF

// block is one fixed-capacity run of the store (blockSize entries). Entries
// are stored delta-packed relative to the previous entry's offset unless
// the block has been promoted to the 64-bit overflow layer, in which case
// every entry is an absolute uint64.
type block struct {
	base     uint64
	packed   []byte
	overflow bool
	absolute []uint64
	n        int
}

func newBlock(base uint64) *block {
	b := &block{base: base, n: 1}
	if base > math.MaxUint32 {
		b.overflow = true
		b.absolute = []uint64{base}
	}
	return b
}

// nextPos decodes one packed entry starting at packed[ptr], given the
// previous absolute position, and returns the new position plus the
// number of bytes consumed.
func nextPos(packed []byte, ptr int, prevPos uint64) (uint64, int) {
	lead := packed[ptr]
	switch {
	case lead&0x80 == 0:
		// 0xxxxxxx: one-byte relative delta, 0-127.
		return prevPos + uint64(lead), 1
	case lead&0xC0 == 0x80:
		// 10xxxxxx xxxxxxx: two-byte relative delta, 0-16383, big-endian
		// after stripping the marker bits.
		lo := packed[ptr+1]
		delta := (uint64(lead&0x3F) << 8) | uint64(lo)
		return prevPos + delta, 2
	default:
		// escape marker then a 4-byte absolute offset, big-endian.
		abs := binary.BigEndian.Uint32(packed[ptr+1 : ptr+5])
		return uint64(abs), 5
	}
}

func (b *block) at(i int) uint64 {
	if b.overflow {
		return b.absolute[i]
	}
	pos := b.base
	ptr := 0
	for k := 0; k < i; k++ {
		var consumed int
		pos, consumed = nextPos(b.packed, ptr, pos)
		ptr += consumed
	}
	return pos
}

// decodeAllUpTo returns the absolute offsets of entries [0, k) in the
// block, used both to promote a block to the overflow layer and to
// rebuild a block that TruncateTo has cut mid-block.
func (b *block) decodeAllUpTo(k int) []uint64 {
	out := make([]uint64, k)
	for i := 0; i < k; i++ {
		out[i] = b.at(i)
	}
	return out
}

// promote converts the block to the 64-bit overflow layer in place,
// preserving its already-appended entries.
func (b *block) promote() {
	b.absolute = b.decodeAllUpTo(b.n)
	b.packed = nil
	b.overflow = true
}

// append adds offset to the block, given the previous absolute offset in
// the store (prev == b.base's predecessor for the block's first entry,
// otherwise the entry just appended).
func (b *block) append(prev, offset uint64) {
	if b.overflow {
		b.absolute = append(b.absolute, offset)
		b.n++
		return
	}

	delta := offset - prev
	switch {
	case delta < 128:
		b.packed = append(b.packed, byte(delta))
	case delta < 16384:
		b.packed = append(b.packed, 0x80|byte(delta>>8), byte(delta))
	default:
		if offset > math.MaxUint32 {
			b.promote()
			b.absolute = append(b.absolute, offset)
			b.n++
			return
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(offset))
		b.packed = append(b.packed, escapeMarker)
		b.packed = append(b.packed, buf[:]...)
	}
	b.n++
}

// rebuild re-packs a fresh block from a list of absolute offsets, as if
// they had been appended one by one. Used by TruncateTo to reconstruct a
// block cut mid-way.
func rebuild(offsets []uint64) *block {
	b := newBlock(offsets[0])
	prev := offsets[0]
	for _, off := range offsets[1:] {
		b.append(prev, off)
		prev = off
	}
	return b
}

// Store is the Compressed Line Offset Store: append(offset), at(line),
// size(), truncate_to(line_count) from spec.md §4.1. It is safe for
// concurrent use under the single-writer/many-reader discipline spec.md
// §5 describes: Append and TruncateTo must be called from one goroutine
// (the indexer); At and Size may be called concurrently from any number
// of readers.
type Store struct {
	mu         sync.RWMutex
	blockSize  int
	blocks     []*block
	count      int64
	prevOffset uint64
	logger     *zerolog.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger attaches a structured logger for block-promotion tracing.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an empty Store with the given block size (B). blockSize <= 0
// defaults to 128, the size spec.md recommends.
func New(blockSize int, opts ...Option) *Store {
	if blockSize <= 0 {
		blockSize = 128
	}
	s := &Store{blockSize: blockSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records offset as the next line's starting byte offset. Must be
// called only by the store's single writer (the indexer).
func (s *Store) Append(offset uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocks) == 0 || s.blocks[len(s.blocks)-1].n == s.blockSize {
		s.blocks = append(s.blocks, newBlock(offset))
	} else {
		last := s.blocks[len(s.blocks)-1]
		before := last.overflow
		last.append(s.prevOffset, offset)
		if !before && last.overflow && s.logger != nil {
			s.logger.Debug().
				Int("block", len(s.blocks)-1).
				Uint64("offset", offset).
				Msg("block promoted to 64-bit overflow layer")
		}
	}
	s.prevOffset = offset
	s.count++
}

// At returns the absolute byte offset of line. line must be < Size();
// violating that is an InternalConsistency fault (spec.md §4.1: "a
// programming error") and panics rather than returning an error.
func (s *Store) At(line int64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.atLocked(line)
}

func (s *Store) atLocked(line int64) uint64 {
	if line < 0 || line >= s.count {
		panic(fmt.Sprintf("store: At(%d) out of range, size=%d", line, s.count))
	}
	blockIdx := line / int64(s.blockSize)
	within := int(line % int64(s.blockSize))
	return s.blocks[blockIdx].at(within)
}

// Size returns the current line count.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// TruncateTo shrinks the store to n lines, discarding whole trailing
// blocks and, if n falls mid-block, rebuilding that one boundary block
// from its retained prefix. This resolves the Open Question spec.md §9
// flags about the original's empty pop_back(): truncation is fully
// supported, not a no-op. n must be <= Size(); n > Size() is an
// InternalConsistency fault.
func (s *Store) TruncateTo(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 || n > s.count {
		return kloggerr.New(kloggerr.KindInternalConsistency,
			fmt.Errorf("store: TruncateTo(%d): current size is %d", n, s.count))
	}
	if n == s.count {
		return nil
	}
	if n == 0 {
		s.blocks = nil
		s.count = 0
		s.prevOffset = 0
		return nil
	}

	blockIdx := n / int64(s.blockSize)
	within := int(n % int64(s.blockSize))
	if within == 0 {
		s.blocks = s.blocks[:blockIdx]
	} else {
		kept := s.blocks[blockIdx].decodeAllUpTo(within)
		s.blocks = s.blocks[:blockIdx+1]
		s.blocks[blockIdx] = rebuild(kept)
	}
	s.count = n
	s.prevOffset = s.atLocked(n - 1)
	return nil
}

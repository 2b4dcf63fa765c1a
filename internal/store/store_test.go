package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndAtBasic(t *testing.T) {
	s := New(4)
	offsets := []uint64{0, 4, 7, 15, 16, 1000, 1001}
	for _, o := range offsets {
		s.Append(o)
	}

	require.Equal(t, int64(len(offsets)), s.Size())
	for i, want := range offsets {
		assert.Equal(t, want, s.At(int64(i)), "line %d", i)
	}
}

func TestAtOutOfRangePanics(t *testing.T) {
	s := New(4)
	s.Append(0)
	assert.Panics(t, func() { s.At(1) })
	assert.Panics(t, func() { s.At(-1) })
}

func TestMonotonicOffsetsAcrossManyBlocks(t *testing.T) {
	s := New(8)
	var pos uint64
	n := 10_000
	for i := 0; i < n; i++ {
		s.Append(pos)
		pos += uint64(i%200 + 1) // vary delta size across the 1/2/escape boundaries
	}
	require.Equal(t, int64(n), s.Size())

	var prev uint64
	for i := 0; i < n; i++ {
		got := s.At(int64(i))
		if i > 0 {
			assert.GreaterOrEqual(t, got, prev)
		}
		prev = got
	}
}

func TestTwoByteDeltaBoundary(t *testing.T) {
	s := New(128)
	s.Append(0)
	s.Append(127)   // 1-byte delta boundary (127 < 128)
	s.Append(127 + 16383)
	s.Append(127 + 16383 + 20000) // forces escape (>= 16384)

	assert.Equal(t, uint64(0), s.At(0))
	assert.Equal(t, uint64(127), s.At(1))
	assert.Equal(t, uint64(127+16383), s.At(2))
	assert.Equal(t, uint64(127+16383+20000), s.At(3))
}

func TestOverflowPromotionAcross32BitBoundary(t *testing.T) {
	s := New(8)
	base := uint64(math.MaxUint32) - 5
	s.Append(base)
	s.Append(base + 10) // still fits a 2-byte delta, no promotion yet
	s.Append(base + 10 + 20000) // absolute target now exceeds MaxUint32 -> promote

	assert.Equal(t, base, s.At(0))
	assert.Equal(t, base+10, s.At(1))
	assert.Equal(t, base+10+20000, s.At(2))
}

func TestTruncateToBlockBoundary(t *testing.T) {
	s := New(4)
	for i := 0; i < 12; i++ {
		s.Append(uint64(i * 10))
	}
	require.NoError(t, s.TruncateTo(8))
	assert.Equal(t, int64(8), s.Size())
	assert.Equal(t, uint64(70), s.At(7))
	assert.Panics(t, func() { s.At(8) })

	// appending after truncation continues correctly
	s.Append(uint64(71))
	assert.Equal(t, uint64(71), s.At(8))
}

func TestTruncateToMidBlock(t *testing.T) {
	s := New(4)
	for i := 0; i < 10; i++ {
		s.Append(uint64(i * 10))
	}
	require.NoError(t, s.TruncateTo(6)) // mid-block (block size 4, 6 = block 1, within 2)
	assert.Equal(t, int64(6), s.Size())
	for i := 0; i < 6; i++ {
		assert.Equal(t, uint64(i*10), s.At(int64(i)))
	}
	assert.Panics(t, func() { s.At(6) })

	s.Append(uint64(999))
	assert.Equal(t, uint64(999), s.At(6))
}

func TestTruncateToZero(t *testing.T) {
	s := New(4)
	for i := 0; i < 5; i++ {
		s.Append(uint64(i))
	}
	require.NoError(t, s.TruncateTo(0))
	assert.Equal(t, int64(0), s.Size())
	s.Append(42)
	assert.Equal(t, uint64(42), s.At(0))
}

func TestTruncateToAboveSizeIsInternalConsistencyFault(t *testing.T) {
	s := New(4)
	s.Append(0)
	err := s.TruncateTo(5)
	assert.Error(t, err)
}

func TestCompressionRatioIsSubByteForSmallUniformLines(t *testing.T) {
	// 80-byte uniform lines should pack into ~1 byte/entry (spec.md §8
	// scenario 3), well under the 8 bytes a naive uint64 array would use.
	s := New(128)
	var pos uint64
	n := 50_000
	for i := 0; i < n; i++ {
		s.Append(pos)
		pos += 80
	}

	var packedBytes int
	for _, b := range s.blocks {
		packedBytes += len(b.packed) + 4 // +4 for the block's own base
	}
	bytesPerLine := float64(packedBytes) / float64(n)
	assert.Less(t, bytesPerLine, 2.0)
}

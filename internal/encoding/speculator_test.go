package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeculatorAllASCII(t *testing.T) {
	s := NewSpeculator()
	s.InjectBytes([]byte("hello world\n"))
	assert.Equal(t, ASCII7, s.Guess())
}

func TestSpeculatorValidUTF8(t *testing.T) {
	s := NewSpeculator()
	s.InjectBytes([]byte("caf\xc3\xa9")) // "café"
	assert.Equal(t, UTF8, s.Guess())
}

func TestSpeculatorMalformedSequenceDemotes(t *testing.T) {
	s := NewSpeculator()
	s.InjectBytes([]byte("caf\xc3\xa9")) // valid utf8
	s.InjectByte(0xff)                   // malformed lead byte
	assert.Equal(t, ASCII8, s.Guess())

	// once demoted, further valid utf8 bytes do not recover.
	s.InjectBytes([]byte("\xc3\xa9"))
	assert.Equal(t, ASCII8, s.Guess())
}

func TestSpeculatorOverlongSequenceRejected(t *testing.T) {
	s := NewSpeculator()
	// 0xC0 0x80 is an overlong encoding of NUL: codepoint 0 < min_value 0x80.
	s.InjectByte(0xC0)
	s.InjectByte(0x80)
	assert.Equal(t, ASCII8, s.Guess())
}

func TestSpeculatorTruncatedSequenceStaysLeading(t *testing.T) {
	s := NewSpeculator()
	s.InjectByte(0xE2) // 3-byte lead, 2 continuations expected
	assert.Equal(t, ASCII8, s.Guess()) // mid-sequence maps to ASCII8
}

func TestDecoderReplacesInvalidUTF8(t *testing.T) {
	d := DefaultDecoder{}
	out := d.Decode([]byte("ab\xffcd"), UTF8)
	assert.Contains(t, out, "�")
	assert.Contains(t, out, "ab")
	assert.Contains(t, out, "cd")
}

func TestDecoderLatin1RoundTripsHighBytes(t *testing.T) {
	d := DefaultDecoder{}
	out := d.Decode([]byte{0xe9}, ASCII8) // é in latin-1
	assert.Equal(t, "é", out)
}

func TestDecoderUTF16LE(t *testing.T) {
	d := DefaultDecoder{}
	// "hi" in UTF-16LE
	out := d.Decode([]byte{'h', 0, 'i', 0}, UTF16LE)
	assert.Equal(t, "hi", out)
}

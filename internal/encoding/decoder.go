package encoding

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Decoder is the injected interface spec.md §6 names: decode(bytes,
// encoding) -> string, with a replacement policy for invalid sequences.
// DecodeError (spec.md §7) is never returned here by design: malformed
// bytes are replaced with U+FFFD and decoding always succeeds, keeping
// raw byte offsets meaningful regardless of content.
type Decoder interface {
	Decode(b []byte, enc Encoding) string
}

// DefaultDecoder implements Decoder using the standard library only: no
// example in the corpus vendors a dedicated charset-decoding library, so
// this is the one ambient concern in the module built on stdlib, per the
// standard-library justification requirement.
type DefaultDecoder struct{}

// Decode converts b to a string under enc, substituting the Unicode
// replacement character for malformed sequences.
func (DefaultDecoder) Decode(b []byte, enc Encoding) string {
	switch enc {
	case ASCII7, ASCII8:
		return decodeLatin1(b)
	case UTF16LE:
		return decodeUTF16(b, true)
	case UTF16BE:
		return decodeUTF16(b, false)
	default:
		return decodeUTF8(b)
	}
}

func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out := make([]rune, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[size:]
	}
	return string(out)
}

func decodeUTF16(b []byte, little bool) string {
	odd := len(b)%2 != 0
	if odd {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		if little {
			units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
		} else {
			units[i] = uint16(b[2*i+1]) | uint16(b[2*i])<<8
		}
	}
	s := string(utf16.Decode(units))
	if odd {
		// A dangling half code unit is a malformed sequence too.
		s += "�"
	}
	return s
}

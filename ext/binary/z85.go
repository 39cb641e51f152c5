package binary

import (
	"strings"

	"github.com/pkg/errors"
)

// Z85 is the ZeroMQ base-85 encoding (RFC 32/Z85) used by CometD for binary
// payloads. Inputs whose length is not a multiple of 4 end with a partial
// group: k trailing bytes become k+1 characters. The alphabet avoids quotes
// and backslashes, so encoded text embeds in JSON strings verbatim.
var Z85 Encoding = z85Encoding{}

const z85Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

var z85Decoder = func() [256]byte {
	var table [256]byte
	for i := range table {
		table[i] = 0xFF
	}
	for i := 0; i < len(z85Alphabet); i++ {
		table[z85Alphabet[i]] = byte(i)
	}
	return table
}()

type z85Encoding struct{}

func (z85Encoding) Name() string { return EncodingZ85 }

func (z85Encoding) EncodedLen(n int) int {
	l := n / 4 * 5
	if rem := n % 4; rem > 0 {
		l += rem + 1
	}
	return l
}

func (e z85Encoding) Encode(src []byte) string {
	var sb strings.Builder
	sb.Grow(e.EncodedLen(len(src)))

	var digits [5]byte
	for len(src) > 0 {
		var group [4]byte
		n := copy(group[:], src)
		src = src[n:]

		value := uint32(group[0])<<24 | uint32(group[1])<<16 | uint32(group[2])<<8 | uint32(group[3])
		for i := 4; i >= 0; i-- {
			digits[i] = z85Alphabet[value%85]
			value /= 85
		}
		sb.Write(digits[:n+1])
	}
	return sb.String()
}

func (z85Encoding) Decode(s string) ([]byte, error) {
	if len(s)%5 == 1 {
		return nil, errors.Errorf("z85: invalid length %d", len(s))
	}

	out := make([]byte, 0, len(s)/5*4+4)
	for len(s) > 0 {
		n := min(len(s), 5)
		chunk := s[:n]
		s = s[n:]

		var value uint64
		for i := 0; i < 5; i++ {
			// a partial group is padded with the highest digit
			d := byte(84)
			if i < n {
				d = z85Decoder[chunk[i]]
				if d == 0xFF {
					return nil, errors.Errorf("z85: invalid character %q", chunk[i])
				}
			}
			value = value*85 + uint64(d)
		}
		if value > 0xFFFFFFFF {
			return nil, errors.Errorf("z85: group %q overflows", chunk)
		}

		group := [4]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
		out = append(out, group[:n-1]...)
	}
	return out, nil
}

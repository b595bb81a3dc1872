package tlv

import (
	"strings"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
)

// Uint decodes e.Value as a minimal big-endian unsigned integer: leading
// zero bytes are forbidden except for the single byte 0x00 representing 0
// (spec §4.1, §8 boundary behavior).
func (e Element) Uint() (uint64, error) {
	b := e.Value
	if len(b) == 0 {
		return 0, kerr.New(kerr.Format, "empty integer encoding")
	}
	if len(b) > 8 {
		return 0, kerr.New(kerr.Format, "integer encoding wider than 64 bits")
	}
	if b[0] == 0x00 && len(b) > 1 {
		return 0, kerr.New(kerr.Format, "non-minimal integer encoding: leading zero byte")
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// EncodeUint produces the minimal big-endian encoding of v: a single 0x00
// for zero, otherwise the shortest byte sequence with no leading zero byte.
func EncodeUint(v uint64) []byte {
	if v == 0 {
		return []byte{0x00}
	}
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	out := make([]byte, 8-i)
	copy(out, buf[i:])
	return out
}

// String decodes e.Value as a NUL-terminated UTF-8 string, per the wire
// format; the trailing NUL (if present) is stripped.
func (e Element) String() string {
	return strings.TrimRight(string(e.Value), "\x00")
}

// EncodeString appends a trailing NUL, matching the wire format.
func EncodeString(s string) []byte {
	return append([]byte(s), 0x00)
}

// Imprint reinterprets e.Value as a hashing.Imprint, validating it against
// reg.
func (e Element) Imprint(reg *hashing.Registry) (hashing.Imprint, error) {
	im := hashing.Imprint(e.Value)
	if err := im.Validate(reg); err != nil {
		return nil, err
	}
	return im, nil
}

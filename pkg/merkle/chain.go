// Package merkle implements the hash-chain aggregation engine: combining a
// chain of sibling links under an input hash and level (spec §4.2), and
// reconstructing a calendar chain's registration time from its link shape.
// It generalizes the left/right SHA-256 receipt walk this module started
// from into a per-chain algorithm with level correction and metadata links.
package merkle

import (
	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
)

// Direction is the position of a link's sibling relative to the running hash.
type Direction int

const (
	Left Direction = iota
	Right
)

// metadataMarker is the first byte of a canonically-encoded Metadata
// payload. It must not collide with any registered hashing.Algorithm id so
// that a metadata link can never be misparsed as an imprint (spec P6).
const metadataMarker = 0xF0

// Metadata is carried by a link in place of a raw sibling imprint: an
// aggregator-supplied record identifying who produced this portion of the
// tree, rather than another document's hash.
type Metadata struct {
	ClientID   string
	MachineID  string
	SequenceNr uint64
	// RequestTime is optional; RequestTimePresent distinguishes "zero" from
	// "absent" the way the wire encoding's optional field does.
	RequestTime        uint64
	RequestTimePresent bool
}

// Encode produces the canonical, self-describing byte encoding of m,
// prefixed with metadataMarker.
func (m Metadata) Encode() []byte {
	out := []byte{metadataMarker}
	out = appendLenPrefixed(out, []byte(m.ClientID))
	out = appendLenPrefixed(out, []byte(m.MachineID))
	out = appendUint64(out, m.SequenceNr)
	if m.RequestTimePresent {
		out = append(out, 0x01)
		out = appendUint64(out, m.RequestTime)
	} else {
		out = append(out, 0x00)
	}
	return out
}

// IsMetadataEncoding reports whether b begins with the metadata marker.
func IsMetadataEncoding(b []byte) bool {
	return len(b) > 0 && b[0] == metadataMarker
}

// DecodeMetadata parses the canonical encoding produced by Metadata.Encode.
func DecodeMetadata(b []byte) (*Metadata, error) {
	if !IsMetadataEncoding(b) {
		return nil, kerr.New(kerr.Format, "not a metadata encoding")
	}
	r := b[1:]

	clientID, r, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	machineID, r, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	seq, r, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if len(r) < 1 {
		return nil, kerr.New(kerr.Format, "truncated metadata: missing request-time presence byte")
	}
	present := r[0] == 0x01
	r = r[1:]

	m := &Metadata{ClientID: string(clientID), MachineID: string(machineID), SequenceNr: seq}
	if present {
		reqTime, _, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		m.RequestTime = reqTime
		m.RequestTimePresent = true
	}
	return m, nil
}

func readLenPrefixed(b []byte) ([]byte, []byte, error) {
	n, rest, err := readUint64(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, kerr.New(kerr.Format, "truncated metadata field")
	}
	return rest[:n], rest[n:], nil
}

func readUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, kerr.New(kerr.Format, "truncated metadata integer field")
	}
	var v uint64
	for _, c := range b[:8] {
		v = v<<8 | uint64(c)
	}
	return v, b[8:], nil
}

func appendLenPrefixed(out, b []byte) []byte {
	out = appendUint64(out, uint64(len(b)))
	return append(out, b...)
}

func appendUint64(out []byte, v uint64) []byte {
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return append(out, buf[:]...)
}

// HashChainLink is one step of a hash-chain aggregation: either a sibling
// imprint or a metadata record (exactly one is present, per spec §3).
type HashChainLink struct {
	Direction       Direction
	Sibling         hashing.Imprint
	Metadata        *Metadata
	LevelCorrection uint8
}

// siblingBytes returns the bytes to combine into the running hash: the raw
// sibling imprint, or the canonical metadata encoding.
func (l HashChainLink) siblingBytes() ([]byte, error) {
	hasSibling := len(l.Sibling) > 0
	hasMetadata := l.Metadata != nil
	if hasSibling == hasMetadata {
		return nil, kerr.New(kerr.Format, "hash chain link must carry exactly one of sibling or metadata")
	}
	if hasMetadata {
		return l.Metadata.Encode(), nil
	}
	return []byte(l.Sibling), nil
}

// LinkStep applies one link to the running (hash, level) pair and returns
// the new (hash, level), per spec §4.2:
//
//	level' = level + levelCorrection + 1
//	combined = left  ? hash_a(sibling ‖ h ‖ byte(level')) : hash_a(h ‖ sibling ‖ byte(level'))
//
// Fails with a Format error if level' would exceed 255.
func LinkStep(reg *hashing.Registry, alg hashing.Algorithm, h hashing.Imprint, level uint8, link HashChainLink) (hashing.Imprint, uint8, error) {
	sib, err := link.siblingBytes()
	if err != nil {
		return nil, 0, err
	}

	newLevel := int(level) + int(link.LevelCorrection) + 1
	if newLevel > 255 {
		return nil, 0, kerr.New(kerr.Format, "aggregation level overflow: exceeds 255")
	}

	hasher, err := reg.NewHasher(alg)
	if err != nil {
		return nil, 0, err
	}
	if link.Direction == Left {
		hasher.Write(sib)
		hasher.Write(h)
	} else {
		hasher.Write(h)
		hasher.Write(sib)
	}
	hasher.Write([]byte{byte(newLevel)})

	return hasher.Close(), uint8(newLevel), nil
}

// Aggregate applies links in order starting from (inputHash, inputLevel),
// using alg for every link's hash combination, and returns the resulting
// (outputHash, outputLevel). Fails with Format if links is empty (spec §8
// boundary behavior: "Empty aggregation-chain list fails with FORMAT").
func Aggregate(reg *hashing.Registry, alg hashing.Algorithm, inputHash hashing.Imprint, inputLevel uint8, links []HashChainLink) (hashing.Imprint, uint8, error) {
	if len(links) == 0 {
		return nil, 0, kerr.New(kerr.Format, "aggregation chain has no links")
	}

	h, level := inputHash, inputLevel
	var err error
	for _, link := range links {
		h, level, err = LinkStep(reg, alg, h, level, link)
		if err != nil {
			return nil, 0, err
		}
	}
	return h, level, nil
}

// AggregateCalendar applies the same link rule as Aggregate but with the
// fixed SHA-256 algorithm and level-correction always 0 (spec §4.2,
// "Calendar aggregate"), yielding the calendar root hash to be matched
// against a trust anchor.
func AggregateCalendar(reg *hashing.Registry, inputHash hashing.Imprint, links []HashChainLink) (hashing.Imprint, error) {
	for i, l := range links {
		if l.LevelCorrection != 0 {
			return nil, kerr.New(kerr.Format, "calendar chain link level correction must be zero")
		}
		_ = i
	}
	h, _, err := Aggregate(reg, hashing.SHA256, inputHash, 0, links)
	return h, err
}

// ReconstructRegistrationTime recomputes the calendar chain's aggregation
// time from its publication time and link shape (spec §4.2): reading links
// in stored (leaf-to-root) order, each link contributes one bit to the
// elapsed-time offset - right links set the bit, left links clear it - least
// significant bit first, matching the construction procedure's repeated
// "divide the interval by 2" halving.
func ReconstructRegistrationTime(publicationTime uint64, links []HashChainLink) uint64 {
	var offset uint64
	multiplier := uint64(1)
	for _, link := range links {
		if link.Direction == Right {
			offset += multiplier
		}
		multiplier <<= 1
	}
	return publicationTime - offset
}

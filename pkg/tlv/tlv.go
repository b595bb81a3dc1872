// Package tlv implements the nested, self-describing tag-length-value wire
// codec: short (TLV8) and long (TLV16) header forms, the non-critical and
// forward flags, and minimal big-endian unsigned integer encoding.
package tlv

import (
	"encoding/binary"
	"io"

	"github.com/certen/ksiverify/pkg/kerr"
)

const (
	flagLong        = 0x80
	flagNonCritical = 0x40
	flagForward     = 0x20
	tag8Mask        = 0x1f
)

// Element is one decoded TLV node. Value holds the raw payload bytes;
// callers reinterpret it lazily as a string, integer, imprint, or further
// nested elements via Children, matching the codec's "re-cast a raw value"
// design (spec §4.1).
type Element struct {
	Tag         uint16
	NonCritical bool
	Forward     bool
	Long        bool // whether this element used the TLV16 header on the wire
	Value       []byte
}

// ParseAll decodes a flat sequence of sibling elements from r until EOF.
func ParseAll(r io.Reader) ([]Element, error) {
	var out []Element
	br := newByteReader(r)
	for {
		el, err := parseOne(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

// Children decodes e.Value as a nested sequence of elements.
func (e Element) Children() ([]Element, error) {
	return ParseAll(newBytesReader(e.Value))
}

func parseOne(r *byteReader) (Element, error) {
	head, err := r.readByte()
	if err == io.EOF {
		return Element{}, io.EOF
	}
	if err != nil {
		return Element{}, kerr.Wrap(kerr.Format, "reading TLV header", err)
	}

	el := Element{
		NonCritical: head&flagNonCritical != 0,
		Forward:     head&flagForward != 0,
		Long:        head&flagLong != 0,
	}

	var length int
	if el.Long {
		tagBytes, err := r.readN(2)
		if err != nil {
			return Element{}, kerr.Wrap(kerr.Format, "reading TLV16 tag", err)
		}
		el.Tag = binary.BigEndian.Uint16(tagBytes)

		lenBytes, err := r.readN(2)
		if err != nil {
			return Element{}, kerr.Wrap(kerr.Format, "reading TLV16 length", err)
		}
		length = int(binary.BigEndian.Uint16(lenBytes))
	} else {
		el.Tag = uint16(head & tag8Mask)

		lenByte, err := r.readByte()
		if err != nil {
			return Element{}, kerr.Wrap(kerr.Format, "reading TLV8 length", err)
		}
		length = int(lenByte)
	}

	value, err := r.readN(length)
	if err != nil {
		return Element{}, kerr.Wrap(kerr.Format, "TLV value shorter than declared length (buffer overflow)", err)
	}
	el.Value = value
	return el, nil
}

// Serialize encodes a sequence of sibling elements. Each element is written
// using TLV16 if its Long flag is set (so a parsed element keeps its wire
// form), its tag exceeds the 5-bit TLV8 range or its value exceeds 255
// bytes, and TLV8 otherwise; elements built with New/NewNested therefore get
// the minimal form, per spec §4.1 ("writers may choose the minimal form").
func Serialize(elements []Element) []byte {
	var out []byte
	for _, e := range elements {
		out = append(out, e.serialize()...)
	}
	return out
}

func (e Element) serialize() []byte {
	long := e.Long || e.Tag > tag8Mask || len(e.Value) > 0xff

	head := byte(0)
	if e.NonCritical {
		head |= flagNonCritical
	}
	if e.Forward {
		head |= flagForward
	}

	if !long {
		buf := make([]byte, 0, 2+len(e.Value))
		buf = append(buf, head|byte(e.Tag))
		buf = append(buf, byte(len(e.Value)))
		buf = append(buf, e.Value...)
		return buf
	}

	head |= flagLong
	buf := make([]byte, 0, 5+len(e.Value))
	buf = append(buf, head)
	var tagBuf [2]byte
	binary.BigEndian.PutUint16(tagBuf[:], e.Tag)
	buf = append(buf, tagBuf[:]...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(e.Value)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, e.Value...)
	return buf
}

// New builds a leaf element carrying raw bytes.
func New(tag uint16, value []byte) Element {
	return Element{Tag: tag, Value: value}
}

// NewNonCritical builds a non-critical leaf element.
func NewNonCritical(tag uint16, forward bool, value []byte) Element {
	return Element{Tag: tag, NonCritical: true, Forward: forward, Value: value}
}

// NewNested builds an element whose value is the serialization of children.
func NewNested(tag uint16, children []Element) Element {
	return Element{Tag: tag, Value: Serialize(children)}
}

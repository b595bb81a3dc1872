package signature

import (
	"bytes"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/tlv"
)

// ParseCalendarChain decodes a single calendar-chain TLV element, the shape
// an Extender collaborator returns (spec §4.5). It is the standalone
// counterpart to Parse's embedded calendar-chain decoding.
func ParseCalendarChain(reg *hashing.Registry, data []byte) (*CalendarChain, error) {
	els, err := tlv.ParseAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(els) != 1 || els[0].Tag != TagCalendarChain {
		return nil, kerr.New(kerr.Format, "expected a single top-level calendar chain element")
	}
	return parseCalendarChain(reg, els[0])
}

// EncodeCalendarChain serializes a calendar chain to the same standalone
// shape ParseCalendarChain reads back.
func EncodeCalendarChain(c *CalendarChain) []byte {
	return tlv.Serialize([]tlv.Element{encodeCalendarChain(c)})
}

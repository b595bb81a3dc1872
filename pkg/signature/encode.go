package signature

import (
	"bytes"

	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/merkle"
	"github.com/certen/ksiverify/pkg/tlv"
)

func encodeLink(link merkle.HashChainLink) tlv.Element {
	var children []tlv.Element
	if link.LevelCorrection != 0 {
		children = append(children, tlv.New(TagLevelCorrection, tlv.EncodeUint(uint64(link.LevelCorrection))))
	}
	if link.Metadata != nil {
		children = append(children, tlv.New(TagMetadata, link.Metadata.Encode()))
	} else {
		children = append(children, tlv.New(TagSiblingHash, []byte(link.Sibling)))
	}

	tag := uint16(TagLeftLink)
	if link.Direction == merkle.Right {
		tag = TagRightLink
	}
	return tlv.NewNested(tag, children)
}

func encodeCalendarChain(c *CalendarChain) tlv.Element {
	children := []tlv.Element{
		tlv.New(TagAggrTime, tlv.EncodeUint(c.AggregationTime)),
		tlv.New(TagPubTime, tlv.EncodeUint(c.PublicationTime)),
		tlv.New(TagInputHash, []byte(c.InputHash)),
	}
	for _, link := range c.Links {
		children = append(children, encodeLink(link))
	}
	return tlv.NewNested(TagCalendarChain, children)
}

// Extend replaces the signature's calendar chain with newCal and rewrites
// only the calendar-chain subtree of BaseTLV, leaving every other byte of
// the base TLV untouched (spec §3's "single privileged operation").
func (s *Signature) Extend(newCal *CalendarChain) error {
	top, err := tlv.ParseAll(bytes.NewReader(s.BaseTLV))
	if err != nil {
		return err
	}
	if len(top) != 1 {
		return kerr.New(kerr.Internal, "base TLV does not have exactly one top-level element")
	}

	children, err := top[0].Children()
	if err != nil {
		return err
	}

	replaced := false
	for i, c := range children {
		if c.Tag == TagCalendarChain {
			children[i] = encodeCalendarChain(newCal)
			replaced = true
			break
		}
	}
	if !replaced {
		children = append(children, encodeCalendarChain(newCal))
	}

	newTop := tlv.NewNested(TagSignature, children)
	s.BaseTLV = tlv.Serialize([]tlv.Element{newTop})
	s.Calendar = newCal
	return nil
}

// Serialize returns the authoritative wire bytes for s. It is always
// BaseTLV: Parse retains it verbatim, and Extend is the only mutation,
// which rewrites BaseTLV in place.
func (s *Signature) Serialize() []byte {
	return s.BaseTLV
}

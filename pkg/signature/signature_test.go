package signature

import (
	"bytes"
	"testing"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/merkle"
	"github.com/certen/ksiverify/pkg/tlv"
)

func parseTop(t *testing.T, wire []byte) (tlv.Element, error) {
	t.Helper()
	els, err := tlv.ParseAll(bytes.NewReader(wire))
	if err != nil {
		return tlv.Element{}, err
	}
	if len(els) != 1 {
		t.Fatalf("expected exactly one top-level element, got %d", len(els))
	}
	return els[0], nil
}

func serializeTop(children []tlv.Element) []byte {
	return tlv.Serialize([]tlv.Element{tlv.NewNested(TagSignature, children)})
}

// newUnknownCriticalElement returns a critical element whose tag no parser
// in this package recognizes, to exercise the "unknown critical tag fails"
// rule at the signature's top level.
func newUnknownCriticalElement() tlv.Element {
	return tlv.New(0x0fff, []byte{0x01})
}

func tlvSliceOfFirstChain(t *testing.T, reg *hashing.Registry, sig *Signature) []byte {
	t.Helper()
	top, err := parseTop(t, sig.BaseTLV)
	if err != nil {
		t.Fatalf("parseTop: %v", err)
	}
	children, err := top.Children()
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	for _, c := range children {
		if c.Tag == TagAggregationChain {
			return tlv.Serialize([]tlv.Element{c})
		}
	}
	t.Fatalf("no aggregation chain found in base TLV")
	return nil
}

func imprint(t *testing.T, reg *hashing.Registry, data string) hashing.Imprint {
	t.Helper()
	im, err := hashing.HashImprint(reg, hashing.SHA256, []byte(data))
	if err != nil {
		t.Fatalf("HashImprint: %v", err)
	}
	return im
}

func syntheticSignature(t *testing.T, reg *hashing.Registry) *Signature {
	t.Helper()
	leaf := imprint(t, reg, "document")
	sibling := imprint(t, reg, "sibling")
	aggrRoot := imprint(t, reg, "aggr-root")

	sig := &Signature{
		Chains: []AggregationChain{
			{
				AggregationTime: 1_700_000_000,
				ChainIndex:      []uint64{1, 3},
				InputHash:       leaf,
				AggrAlgo:        hashing.SHA256,
				Links: []merkle.HashChainLink{
					{Direction: merkle.Right, Sibling: sibling},
					{Direction: merkle.Left, Metadata: &merkle.Metadata{ClientID: "gw-1", SequenceNr: 7}},
				},
			},
		},
		Calendar: &CalendarChain{
			AggregationTime: 1_700_000_000,
			PublicationTime: 1_700_000_100,
			InputHash:       aggrRoot,
			Links: []merkle.HashChainLink{
				{Direction: merkle.Right, Sibling: imprint(t, reg, "cal-sib-1")},
				{Direction: merkle.Left, Sibling: imprint(t, reg, "cal-sib-2")},
			},
		},
		Publication: &PublicationRecord{
			PublishedData: PublishedData{
				Time: 1_700_000_100,
				Hash: imprint(t, reg, "pub-root"),
			},
			Refs: []string{"https://example.test/publications.txt"},
		},
	}
	Build(sig)
	return sig
}

func TestBuildParseRoundTrip(t *testing.T) {
	reg := hashing.DefaultRegistry()
	original := syntheticSignature(t, reg)

	parsed, err := Parse(reg, original.BaseTLV)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !bytes.Equal(parsed.Serialize(), original.BaseTLV) {
		t.Fatalf("round trip changed base TLV bytes")
	}
	if len(parsed.Chains) != 1 {
		t.Fatalf("got %d aggregation chains, want 1", len(parsed.Chains))
	}
	if parsed.Chains[0].AggregationTime != original.Chains[0].AggregationTime {
		t.Fatalf("aggregation time mismatch after round trip")
	}
	if len(parsed.Chains[0].Links) != 2 {
		t.Fatalf("got %d links, want 2", len(parsed.Chains[0].Links))
	}
	if parsed.Chains[0].Links[1].Metadata == nil || parsed.Chains[0].Links[1].Metadata.ClientID != "gw-1" {
		t.Fatalf("metadata link did not survive round trip")
	}
	if parsed.Calendar == nil || parsed.Calendar.PublicationTime != 1_700_000_100 {
		t.Fatalf("calendar chain did not survive round trip")
	}
	if parsed.Publication == nil || len(parsed.Publication.Refs) != 1 {
		t.Fatalf("publication record did not survive round trip")
	}
}

// Serialize(Parse(b)) == b for an unmutated signature (spec P1).
func TestParseThenSerializeIsIdentity(t *testing.T) {
	reg := hashing.DefaultRegistry()
	original := syntheticSignature(t, reg)

	parsed, err := Parse(reg, original.BaseTLV)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(parsed.Serialize(), original.BaseTLV) {
		t.Fatalf("Serialize(Parse(b)) != b")
	}
}

func TestExtendReplacesOnlyCalendarChain(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := syntheticSignature(t, reg)

	firstChainBefore := append([]byte(nil), tlvSliceOfFirstChain(t, reg, sig)...)

	newCal := &CalendarChain{
		AggregationTime: 1_700_000_000,
		PublicationTime: 1_700_003_600,
		InputHash:       sig.Calendar.InputHash,
		Links: []merkle.HashChainLink{
			{Direction: merkle.Left, Sibling: imprint(t, reg, "cal-sib-3")},
			{Direction: merkle.Left, Sibling: imprint(t, reg, "cal-sib-4")},
			{Direction: merkle.Right, Sibling: imprint(t, reg, "cal-sib-5")},
		},
	}
	if err := sig.Extend(newCal); err != nil {
		t.Fatalf("Extend: %v", err)
	}

	reparsed, err := Parse(reg, sig.BaseTLV)
	if err != nil {
		t.Fatalf("Parse after Extend: %v", err)
	}
	if reparsed.Calendar.PublicationTime != 1_700_003_600 {
		t.Fatalf("extend did not update publication time")
	}
	if len(reparsed.Calendar.Links) != 3 {
		t.Fatalf("extend did not update calendar links")
	}

	firstChainAfter := tlvSliceOfFirstChain(t, reg, reparsed)
	if !bytes.Equal(firstChainBefore, firstChainAfter) {
		t.Fatalf("Extend mutated the aggregation chain subtree")
	}
}

// Extending a signature already carrying the same calendar chain is
// idempotent: re-extending with an identical chain does not change the
// base TLV bytes (spec P5).
func TestExtendIdempotence(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := syntheticSignature(t, reg)

	cal := &CalendarChain{
		AggregationTime: sig.Calendar.AggregationTime,
		PublicationTime: sig.Calendar.PublicationTime,
		InputHash:       sig.Calendar.InputHash,
		Links:           sig.Calendar.Links,
	}
	if err := sig.Extend(cal); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	after := append([]byte(nil), sig.BaseTLV...)

	if err := sig.Extend(cal); err != nil {
		t.Fatalf("second Extend: %v", err)
	}
	if !bytes.Equal(sig.BaseTLV, after) {
		t.Fatalf("re-extending with an identical calendar chain changed base TLV bytes")
	}
}

func TestParseRejectsUnknownCriticalTopLevelTag(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := syntheticSignature(t, reg)

	top, err := parseTop(t, sig.BaseTLV)
	if err != nil {
		t.Fatalf("parseTop: %v", err)
	}
	children, err := top.Children()
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	children = append(children, newUnknownCriticalElement())
	badWire := serializeTop(children)

	if _, err := Parse(reg, badWire); err == nil {
		t.Fatalf("expected Parse to reject an unknown critical top-level tag")
	}
}

func TestParseRejectsEmptyAggregationChainList(t *testing.T) {
	reg := hashing.DefaultRegistry()
	sig := &Signature{}
	wire := Build(sig)
	if _, err := Parse(reg, wire); err == nil {
		t.Fatalf("expected Parse to reject a signature with no aggregation chains")
	}
}

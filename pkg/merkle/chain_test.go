package merkle

import (
	"testing"

	"github.com/certen/ksiverify/pkg/hashing"
)

func leafImprint(t *testing.T, reg *hashing.Registry, data string) hashing.Imprint {
	t.Helper()
	im, err := hashing.HashImprint(reg, hashing.SHA256, []byte(data))
	if err != nil {
		t.Fatalf("HashImprint: %v", err)
	}
	return im
}

func TestAggregateSingleLinkMatchesLinkStep(t *testing.T) {
	reg := hashing.DefaultRegistry()
	leaf := leafImprint(t, reg, "document")
	sibling := leafImprint(t, reg, "sibling")

	got, level, err := Aggregate(reg, hashing.SHA256, leaf, 0, []HashChainLink{
		{Direction: Right, Sibling: sibling, LevelCorrection: 0},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if level != 1 {
		t.Fatalf("level = %d, want 1", level)
	}

	want, wantLevel, err := LinkStep(reg, hashing.SHA256, leaf, 0, HashChainLink{Direction: Right, Sibling: sibling})
	if err != nil {
		t.Fatalf("LinkStep: %v", err)
	}
	if !got.Equal(want) || level != wantLevel {
		t.Fatalf("Aggregate and LinkStep diverged")
	}
}

func TestAggregateEmptyLinksFails(t *testing.T) {
	reg := hashing.DefaultRegistry()
	leaf := leafImprint(t, reg, "x")
	if _, _, err := Aggregate(reg, hashing.SHA256, leaf, 0, nil); err == nil {
		t.Fatalf("expected FORMAT error for empty link list")
	}
}

func TestAggregateLevelOverflowFails(t *testing.T) {
	reg := hashing.DefaultRegistry()
	leaf := leafImprint(t, reg, "x")
	sibling := leafImprint(t, reg, "y")
	if _, _, err := LinkStep(reg, hashing.SHA256, leaf, 250, HashChainLink{Direction: Left, Sibling: sibling, LevelCorrection: 10}); err == nil {
		t.Fatalf("expected FORMAT error for level > 255")
	}
}

func TestMetadataMarkerDoesNotCollideWithAlgorithms(t *testing.T) {
	for _, alg := range []hashing.Algorithm{hashing.SHA256, hashing.SHA512, hashing.SHA3_256, hashing.Keccak256, hashing.SM3} {
		if byte(alg) == metadataMarker {
			t.Fatalf("metadata marker collides with registered algorithm %#x", byte(alg))
		}
	}
}

func TestMetadataLinkStepSucceeds(t *testing.T) {
	reg := hashing.DefaultRegistry()
	leaf := leafImprint(t, reg, "x")
	link := HashChainLink{Direction: Left, Metadata: &Metadata{ClientID: "gateway-1", SequenceNr: 7}}
	if _, _, err := LinkStep(reg, hashing.SHA256, leaf, 0, link); err != nil {
		t.Fatalf("LinkStep with metadata: %v", err)
	}
}

func TestLinkMustHaveExactlyOneOfSiblingOrMetadata(t *testing.T) {
	reg := hashing.DefaultRegistry()
	leaf := leafImprint(t, reg, "x")

	both := HashChainLink{Direction: Left, Sibling: leaf, Metadata: &Metadata{ClientID: "a"}}
	if _, _, err := LinkStep(reg, hashing.SHA256, leaf, 0, both); err == nil {
		t.Fatalf("expected error: both sibling and metadata present")
	}

	neither := HashChainLink{Direction: Left}
	if _, _, err := LinkStep(reg, hashing.SHA256, leaf, 0, neither); err == nil {
		t.Fatalf("expected error: neither sibling nor metadata present")
	}
}

func TestReconstructRegistrationTimeRoundTrip(t *testing.T) {
	// Build links whose shape encodes offset = 13 (binary 1101, LSB first:
	// right, left, right, right) from an arbitrary publication time.
	pubTime := uint64(1_700_000_100)
	aggrTime := pubTime - 13

	links := []HashChainLink{
		{Direction: Right}, // bit0 = 1
		{Direction: Left},  // bit1 = 0
		{Direction: Right}, // bit2 = 1
		{Direction: Right}, // bit3 = 1
	}

	got := ReconstructRegistrationTime(pubTime, links)
	if got != aggrTime {
		t.Fatalf("ReconstructRegistrationTime = %d, want %d", got, aggrTime)
	}
}

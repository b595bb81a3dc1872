package tlv

import (
	"fmt"

	"github.com/certen/ksiverify/pkg/kerr"
)

// Cardinality constrains how many times a template field may appear among a
// parent's children.
type Cardinality int

const (
	// One requires exactly one occurrence.
	One Cardinality = iota
	// OptionalField permits zero or one occurrence.
	OptionalField
	// Many permits zero or more occurrences.
	Many
)

// FieldSpec is one permitted child entry in a Template: a data-driven
// descriptor standing in for the source's callback-based template entries
// (spec §9 re-architecture note - "custom per-tag logic is expressed as
// tagged variants in the template type, not function pointers").
type FieldSpec struct {
	Tag         uint16
	Cardinality Cardinality
}

// Template is an ordered list of permitted child entries, interpreted by a
// single generic decoder (Decode) rather than per-type parsing code.
type Template struct {
	Fields []FieldSpec
	// ForwardUnknown controls the fate of an unknown, non-critical child
	// whose own Forward flag is set: true preserves it in Decoded.Remainder
	// for verbatim re-serialization, false drops it silently.
	ForwardUnknown bool
}

// Decoded is the result of routing a parent's children against a Template.
type Decoded struct {
	byTag map[uint16][]Element
	// Remainder holds unknown, non-critical, forward-flagged children that
	// survived routing, in original order, for round-trip preservation.
	Remainder []Element
}

// Decode routes children against t, failing with a Format error if:
//   - a One field is matched zero or more than one times,
//   - an OptionalField is matched more than once,
//   - an unknown tag appears that is not marked non-critical
//     (UNKNOWN_CRITICAL_TAG).
func (t Template) Decode(children []Element) (*Decoded, error) {
	spec := make(map[uint16]FieldSpec, len(t.Fields))
	for _, f := range t.Fields {
		spec[f.Tag] = f
	}

	byTag := make(map[uint16][]Element)
	var remainder []Element

	for _, c := range children {
		if _, known := spec[c.Tag]; known {
			byTag[c.Tag] = append(byTag[c.Tag], c)
			continue
		}
		if !c.NonCritical {
			return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x", c.Tag))
		}
		if c.Forward && t.ForwardUnknown {
			remainder = append(remainder, c)
		}
		// Unknown, non-critical, non-forwarded: dropped.
	}

	for _, f := range t.Fields {
		n := len(byTag[f.Tag])
		switch f.Cardinality {
		case One:
			if n != 1 {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("tag %#x must occur exactly once, occurred %d times", f.Tag, n))
			}
		case OptionalField:
			if n > 1 {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("tag %#x must occur at most once, occurred %d times", f.Tag, n))
			}
		case Many:
			// any count, including zero, is structurally valid here;
			// non-empty-list invariants are enforced by the owning type.
		}
	}

	return &Decoded{byTag: byTag, Remainder: remainder}, nil
}

// One returns the single element routed to tag. Callers must only invoke
// this for tags declared with Cardinality One in the template that produced
// d - Decode already guarantees exactly one match.
func (d *Decoded) One(tag uint16) Element {
	return d.byTag[tag][0]
}

// Optional returns the element routed to tag, if any.
func (d *Decoded) Optional(tag uint16) (Element, bool) {
	els := d.byTag[tag]
	if len(els) == 0 {
		return Element{}, false
	}
	return els[0], true
}

// All returns every element routed to tag, in original order.
func (d *Decoded) All(tag uint16) []Element {
	return d.byTag[tag]
}

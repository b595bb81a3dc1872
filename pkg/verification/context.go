// Package verification implements the rule catalogue and verification
// context of spec §4.3: a signature is checked by running an ordered set of
// pure predicates against a VerificationContext, each yielding a RuleResult.
// Composing rules into policies is pkg/policy's job; this package only
// defines the rules themselves and the context they read from.
package verification

import (
	"context"

	"github.com/certen/ksiverify/pkg/extender"
	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/pki"
	"github.com/certen/ksiverify/pkg/pubfile"
	"github.com/certen/ksiverify/pkg/signature"
)

// Status is a rule's outcome. NA lets composition distinguish "rule could
// not run" from "rule failed" (spec §4.3). Inconclusive lets a rule report
// that it can neither confirm nor fail a signature - distinct from NA
// ("does not apply here") and from Fail ("applies and does not hold") -
// per spec §9's instruction not to silently pass what cannot be verified
// (e.g. rule INT-12).
type Status int

const (
	OK Status = iota
	NA
	Fail
	Inconclusive
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NA:
		return "NA"
	case Fail:
		return "FAIL"
	case Inconclusive:
		return "INCONCLUSIVE"
	default:
		return "UNKNOWN"
	}
}

// RuleResult is the outcome of one rule evaluation: step-id identifies the
// rule (e.g. "GEN-01"), error-code is a short machine-readable reason for a
// FAIL, description is the human-readable detail.
type RuleResult struct {
	Status      Status
	StepID      string
	ErrorCode   string
	Description string
}

func ok(stepID string) RuleResult { return RuleResult{Status: OK, StepID: stepID} }
func na(stepID string) RuleResult { return RuleResult{Status: NA, StepID: stepID} }
func fail(stepID, code, desc string) RuleResult {
	return RuleResult{Status: Fail, StepID: stepID, ErrorCode: code, Description: desc}
}
func inconclusive(stepID, desc string) RuleResult {
	return RuleResult{Status: Inconclusive, StepID: stepID, Description: desc}
}

// Rule is a pure predicate over a VerificationContext (spec §4.3).
type Rule func(ctx context.Context, vc *VerificationContext) RuleResult

// VerificationContext bundles the signature under test with the optional
// document hash, user-supplied publication, and the collaborators (§3)
// needed to reach a trust anchor. Extended calendar chains are cached per
// tuple for the context's lifetime so a policy composed of several rules
// never re-fetches the same chain twice (spec §4.5).
type VerificationContext struct {
	Registry  *hashing.Registry
	Signature *signature.Signature

	// DocumentHash is nil when the caller only wants to verify the
	// signature's internal consistency, not bind it to a specific document.
	DocumentHash       hashing.Imprint
	DocumentInputLevel uint8

	// UserPublication is the publication record a caller obtained
	// out-of-band (e.g. printed in a newspaper), to verify against instead
	// of a publications file.
	UserPublication *signature.PublishedData

	AllowExtending bool

	Extender         extender.Extender
	PublicationsFile *pubfile.PublicationsFile
	PKI              pki.PKI

	extendedToHead *signature.CalendarChain
	extendedTo     map[uint64]*signature.CalendarChain
}

// lastAggregationTime returns the aggregation time of the root-most
// aggregation chain, the time that anchors any calendar extension request.
func (vc *VerificationContext) lastAggregationTime() uint64 {
	chains := vc.Signature.Chains
	return chains[len(chains)-1].AggregationTime
}

// ExtendedCalendarChain returns the calendar chain from the signature's
// aggregation time to publicationTime (nil means "to head"), fetching it
// from vc.Extender at most once per tuple within this context's lifetime.
func (vc *VerificationContext) ExtendedCalendarChain(ctx context.Context, publicationTime *uint64) (*signature.CalendarChain, error) {
	if vc.Extender == nil {
		return nil, kerr.New(kerr.Argument, "verification context has no extender configured")
	}
	aggTime := vc.lastAggregationTime()

	if publicationTime == nil {
		if vc.extendedToHead != nil {
			return vc.extendedToHead, nil
		}
		chain, err := vc.Extender.Extend(ctx, aggTime, nil)
		if err != nil {
			return nil, err
		}
		vc.extendedToHead = chain
		return chain, nil
	}

	if vc.extendedTo == nil {
		vc.extendedTo = make(map[uint64]*signature.CalendarChain)
	}
	if chain, ok := vc.extendedTo[*publicationTime]; ok {
		return chain, nil
	}
	chain, err := vc.Extender.Extend(ctx, aggTime, publicationTime)
	if err != nil {
		return nil, err
	}
	vc.extendedTo[*publicationTime] = chain
	return chain, nil
}

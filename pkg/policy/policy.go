// Package policy composes pkg/verification's rules into the ordered,
// short-circuiting rule sequences of spec §4.4, with a terminal fallback
// pointer a failing policy may hand off to. The result shape generalizes
// the teacher UnifiedVerifier's VerificationResult: an overall outcome plus
// the accumulated step-by-step history, instead of flat error/warning
// string slices.
package policy

import (
	"context"
	"strings"
	"time"

	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/verification"
)

// Policy is a finite, acyclic sequence of rules with an optional terminal
// fallback. Evaluate runs Rules in order, stopping at the first FAIL; if
// Fallback is set, a FAIL reruns the context under Fallback and its result
// replaces the primary run's (spec §4.4 "fallback results override").
type Policy struct {
	Name     string
	Rules    []verification.Rule
	Fallback *Policy
}

// Result is the outcome of evaluating a Policy: OK if every rule in the
// sequence passed (NA rules are skipped, not counted against OK), or the
// first failing step otherwise.
type Result struct {
	PolicyName string
	OK         bool
	Steps      []verification.RuleResult // every non-NA result, in evaluation order
	FailedStep *verification.RuleResult  // nil unless OK is false
	FellBackTo string                    // name of the fallback policy actually used, if any

	// TrustAnchorAttempted is true when the policy's rule sequence includes
	// at least one trust-anchoring rule (KEY/PUB/USER/CAL), run or not
	// (NA still counts as "attempted" - the rule was in scope). Internal
	// never sets this; every other standard policy does.
	TrustAnchorAttempted bool
	// TrustAnchored is true once one of those trust-anchoring rules actually
	// returned OK. A policy can finish with OK=true and TrustAnchorAttempted
	// true but TrustAnchored false - every applicable rule passed or was NA,
	// but nothing actually bound the signature to a trust anchor (spec §9:
	// this must surface as VerificationInconclusive, not a silent pass).
	TrustAnchored bool
	// Inconclusive marks a FailedStep that is itself a rule-level
	// VerificationInconclusive result (e.g. INT-12), as opposed to a FAIL.
	Inconclusive bool

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Evaluate runs p's rule sequence against vc, falling back to p.Fallback
// (if configured) when the primary sequence fails.
func (p *Policy) Evaluate(ctx context.Context, vc *verification.VerificationContext) *Result {
	start := time.Now()
	r := p.run(ctx, vc)
	r.StartTime = start
	if !r.OK && p.Fallback != nil {
		fb := p.Fallback.run(ctx, vc)
		fb.Steps = append(append([]verification.RuleResult{}, r.Steps...), fb.Steps...)
		fb.FellBackTo = p.Fallback.Name
		fb.StartTime = start
		fb.EndTime = time.Now()
		fb.Duration = fb.EndTime.Sub(fb.StartTime)
		return fb
	}
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	return r
}

func (p *Policy) run(ctx context.Context, vc *verification.VerificationContext) *Result {
	res := &Result{PolicyName: p.Name, OK: true}
	for _, rule := range p.Rules {
		rr := rule(ctx, vc)
		if isTrustAnchorStep(rr.StepID) {
			res.TrustAnchorAttempted = true
		}
		switch rr.Status {
		case verification.NA:
			continue
		case verification.OK:
			res.Steps = append(res.Steps, rr)
			if isTrustAnchorStep(rr.StepID) {
				res.TrustAnchored = true
			}
		case verification.Inconclusive:
			res.Steps = append(res.Steps, rr)
			res.OK = false
			res.Inconclusive = true
			step := rr
			res.FailedStep = &step
			return res
		case verification.Fail:
			res.Steps = append(res.Steps, rr)
			res.OK = false
			step := rr
			res.FailedStep = &step
			return res
		}
	}
	return res
}

// isTrustAnchorStep reports whether stepID names one of the trust-anchoring
// rule families (KEY, PUB, USER, CAL) rather than a purely structural one
// (GEN, DOC, INT): only these rules can bind a signature to a trust anchor.
func isTrustAnchorStep(stepID string) bool {
	for _, prefix := range [...]string{"KEY-", "PUB-", "USER-", "CAL-"} {
		if strings.HasPrefix(stepID, prefix) {
			return true
		}
	}
	return false
}

// Err converts a Result into the *kerr.Error it surfaces to a caller: nil
// when OK and a trust anchor was actually reached (or the policy never
// attempts one, e.g. Internal); kerr.VerificationInconclusive when every
// rule passed or was NA but no trust-anchoring rule ever returned OK, or
// when the failing step is itself an inconclusive rule result (e.g.
// INT-12); kerr.Crypto for an algorithm-lifecycle failure (spec example
// #6); otherwise a kerr.VerificationFailure carrying the failing rule id
// and code (spec §7, §9).
func (r *Result) Err() error {
	if r.OK {
		if r.TrustAnchorAttempted && !r.TrustAnchored {
			return kerr.Inconclusive(r.PolicyName, "no trust-anchoring rule reached OK: no trust anchor was confirmed")
		}
		return nil
	}
	step := r.FailedStep
	if r.Inconclusive {
		return kerr.Inconclusive(step.StepID, step.Description)
	}
	if kind := cryptoErrorCodes[step.ErrorCode]; kind {
		return kerr.Wrap(kerr.Crypto, step.Description, kerr.Failure(step.StepID, step.ErrorCode, step.Description))
	}
	return kerr.Failure(step.StepID, step.ErrorCode, step.Description)
}

// cryptoErrorCodes are the RuleResult error codes that must surface as
// kerr.Crypto instead of the default kerr.VerificationFailure, because they
// describe an algorithm-lifecycle problem rather than a data mismatch.
var cryptoErrorCodes = map[string]bool{
	"ALGORITHM_DEPRECATED": true,
	"ALGORITHM_OBSOLETE":   true,
	"ALGORITHM_UNKNOWN":    true,
}

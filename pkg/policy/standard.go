package policy

import "github.com/certen/ksiverify/pkg/verification"

// internalRules is GEN-01..05, INT-09..12, and the structural DOC-01 rule
// (spec §4.4 "Internal — ...and structural rules"); no external
// collaborator is ever consulted. INT-12 runs in every standard policy
// because it must catch an aggregation-authentication-only signature
// regardless of which trust anchor the policy otherwise attempts.
var internalRules = []verification.Rule{
	verification.RuleGEN01,
	verification.RuleGEN02,
	verification.RuleGEN03,
	verification.RuleGEN04,
	verification.RuleGEN05,
	verification.RuleDOC01,
	verification.RuleINT09,
	verification.RuleINT10,
	verification.RuleINT11,
	verification.RuleINT12,
}

// Internal verifies a signature's structural consistency alone: it never
// reaches a trust anchor, so a caller that needs more than "is this
// signature well-formed and self-consistent" should use one of the other
// standard policies. Terminal: no fallback.
func Internal() *Policy {
	return &Policy{Name: "Internal", Rules: internalRules}
}

// KeyBased anchors trust in a calendar authentication record's PKI
// signature. Requires a publications file to resolve the signing
// certificate (spec §4.4). Terminal: no fallback.
func KeyBased() *Policy {
	return &Policy{
		Name:  "Key-based",
		Rules: append(append([]verification.Rule{}, internalRules...), verification.RuleKEY01, verification.RuleKEY02, verification.RuleKEY03),
	}
}

// PublicationsFile anchors trust in a publications file entry, either one
// the signature already embeds (PUB-01) or one reached by extending the
// calendar chain (PUB-02, PUB-03) - exactly one branch applies per
// signature, the other branch's rules report NA. Falls back to Key-based.
func PublicationsFile() *Policy {
	return &Policy{
		Name:     "Publications-file",
		Rules:    append(append([]verification.Rule{}, internalRules...), verification.RulePUB01, verification.RulePUB02, verification.RulePUB03),
		Fallback: KeyBased(),
	}
}

// UserProvidedPublication anchors trust in a publication the caller
// obtained out-of-band. Falls back to PublicationsFile.
func UserProvidedPublication() *Policy {
	return &Policy{
		Name:     "User-provided-publication",
		Rules:    append(append([]verification.Rule{}, internalRules...), verification.RuleUSER01),
		Fallback: PublicationsFile(),
	}
}

// CalendarBased anchors trust in a live extender response, guarding against
// chain substitution via CAL-01. Terminal: no fallback.
func CalendarBased() *Policy {
	return &Policy{
		Name:  "Calendar-based",
		Rules: append(append([]verification.Rule{}, internalRules...), verification.RuleCAL01),
	}
}

// General picks User-provided-publication when the caller supplied one,
// otherwise Publications-file (spec §4.4 "General").
func General(vc *verification.VerificationContext) *Policy {
	if vc.UserPublication != nil {
		return UserProvidedPublication()
	}
	return PublicationsFile()
}

package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/merkle"
)

// isIndexPrefix reports whether parent is a prefix of child, per GEN-03
// ("parent index is prefix of child index").
func isIndexPrefix(parent, child []uint64) bool {
	if len(parent) > len(child) {
		return false
	}
	for i, v := range parent {
		if child[i] != v {
			return false
		}
	}
	return true
}

// RuleGEN01 checks internal consistency: the aggregation-chain input-hash of
// chain i+1 equals the output-hash of chain i. Only the first chain may
// start from a non-zero level (the caller's document-input-level); every
// subsequent chain begins its own aggregate at level 0.
func RuleGEN01(ctx context.Context, vc *VerificationContext) RuleResult {
	chains := vc.Signature.Chains
	if len(chains) == 0 {
		return fail("GEN-01", "NO_AGGREGATION_CHAIN", "signature has no aggregation chains")
	}
	startLevel := vc.DocumentInputLevel
	for i := 0; i < len(chains)-1; i++ {
		out, _, err := merkle.Aggregate(vc.Registry, chains[i].AggrAlgo, chains[i].InputHash, startLevel, chains[i].Links)
		if err != nil {
			return fail("GEN-01", "AGGREGATION_ERROR", err.Error())
		}
		if !out.Equal(chains[i+1].InputHash) {
			return fail("GEN-01", "AGGREGATION_MISMATCH",
				fmt.Sprintf("chain %d output does not match chain %d input hash", i, i+1))
		}
		startLevel = 0
	}
	return ok("GEN-01")
}

// RuleGEN02 checks aggregation-chain time consistency: every chain in the
// list shares the same aggregation time.
func RuleGEN02(ctx context.Context, vc *VerificationContext) RuleResult {
	chains := vc.Signature.Chains
	if len(chains) < 2 {
		return na("GEN-02")
	}
	want := chains[0].AggregationTime
	for i, c := range chains[1:] {
		if c.AggregationTime != want {
			return fail("GEN-02", "AGGREGATION_TIME_MISMATCH",
				fmt.Sprintf("chain %d aggregation time does not match chain 0", i+1))
		}
	}
	return ok("GEN-02")
}

// RuleGEN03 checks chain-index continuation: each chain's index is a prefix
// of the previous (leaf-ward) chain's index.
func RuleGEN03(ctx context.Context, vc *VerificationContext) RuleResult {
	chains := vc.Signature.Chains
	if len(chains) < 2 {
		return na("GEN-03")
	}
	for i := 0; i < len(chains)-1; i++ {
		if !isIndexPrefix(chains[i+1].ChainIndex, chains[i].ChainIndex) {
			return fail("GEN-03", "CHAIN_INDEX_MISMATCH",
				fmt.Sprintf("chain %d index is not a prefix of chain %d index", i+1, i))
		}
	}
	return ok("GEN-03")
}

// RuleGEN04 checks that the calendar chain's aggregation time equals the
// last aggregation chain's aggregation time. NA if there is no calendar
// chain.
func RuleGEN04(ctx context.Context, vc *VerificationContext) RuleResult {
	cal := vc.Signature.Calendar
	if cal == nil {
		return na("GEN-04")
	}
	if cal.AggregationTime != vc.lastAggregationTime() {
		return fail("GEN-04", "CALENDAR_TIME_MISMATCH",
			"calendar chain aggregation time does not match the last aggregation chain's time")
	}
	return ok("GEN-04")
}

// RuleGEN05 checks that the calendar chain's registration time, reconstructed
// from its link shape, equals its declared aggregation time. NA if there is
// no calendar chain.
func RuleGEN05(ctx context.Context, vc *VerificationContext) RuleResult {
	cal := vc.Signature.Calendar
	if cal == nil {
		return na("GEN-05")
	}
	reconstructed := merkle.ReconstructRegistrationTime(cal.PublicationTime, cal.Links)
	if reconstructed != cal.AggregationTime {
		return fail("GEN-05", "REGISTRATION_TIME_MISMATCH",
			"calendar chain's reconstructed registration time does not match its aggregation time")
	}
	return ok("GEN-05")
}

// RuleDOC01 checks that the caller-supplied document hash matches the
// signature's input: the RFC-3161 record's input hash if one is present,
// otherwise the first aggregation chain's input hash. NA if no document
// hash was supplied.
func RuleDOC01(ctx context.Context, vc *VerificationContext) RuleResult {
	if len(vc.DocumentHash) == 0 {
		return na("DOC-01")
	}
	if r := vc.Signature.RFC3161; r != nil {
		if !vc.DocumentHash.Equal(r.InputHash) {
			return fail("DOC-01", "DOCUMENT_HASH_MISMATCH", "document hash does not match RFC-3161 record input hash")
		}
		return ok("DOC-01")
	}
	chains := vc.Signature.Chains
	if len(chains) == 0 {
		return fail("DOC-01", "NO_AGGREGATION_CHAIN", "signature has no aggregation chains")
	}
	if !vc.DocumentHash.Equal(chains[0].InputHash) {
		return fail("DOC-01", "DOCUMENT_HASH_MISMATCH", "document hash does not match first aggregation chain input hash")
	}
	return ok("DOC-01")
}

// RuleINT09 checks that, when an RFC-3161 legacy record is present, its
// derived aggregation input equals the first aggregation chain's input
// hash. NA if no RFC-3161 record is present.
func RuleINT09(ctx context.Context, vc *VerificationContext) RuleResult {
	r := vc.Signature.RFC3161
	if r == nil {
		return na("INT-09")
	}
	chains := vc.Signature.Chains
	if len(chains) == 0 {
		return fail("INT-09", "NO_AGGREGATION_CHAIN", "signature has no aggregation chains")
	}
	expected, err := r.LegacyAggregationInput(vc.Registry)
	if err != nil {
		return fail("INT-09", "CRYPTO_ERROR", err.Error())
	}
	if !expected.Equal(chains[0].InputHash) {
		return fail("INT-09", "RFC3161_OUTPUT_MISMATCH", "RFC-3161 output hash does not match first aggregation chain input hash")
	}
	return ok("INT-09")
}

// algorithmStatusCode maps a non-OK algorithm Status to its error code, so
// the policy engine can recognize and re-kind these failures as CRYPTO
// rather than a plain verification mismatch (spec example #6).
func algorithmStatusCode(s hashing.Status) string {
	switch s {
	case hashing.StatusDeprecatedAfter:
		return "ALGORITHM_DEPRECATED"
	case hashing.StatusObsoleteAfter:
		return "ALGORITHM_OBSOLETE"
	case hashing.StatusUnknown:
		return "ALGORITHM_UNKNOWN"
	default:
		return ""
	}
}

// RuleINT10 checks that no aggregation chain uses a hash algorithm that was
// deprecated or obsolete as of its own aggregation time.
func RuleINT10(ctx context.Context, vc *VerificationContext) RuleResult {
	chains := vc.Signature.Chains
	if len(chains) == 0 {
		return na("INT-10")
	}
	for i, c := range chains {
		t := time.Unix(int64(c.AggregationTime), 0)
		status := vc.Registry.StatusAt(c.AggrAlgo, t)
		if code := algorithmStatusCode(status); code != "" {
			return fail("INT-10", code, fmt.Sprintf("chain %d aggregation algorithm %s at aggregation time", i, status))
		}
	}
	return ok("INT-10")
}

// RuleINT11 checks that a calendar authentication record, when present,
// references the calendar chain's root hash and publication time. NA if no
// calendar authentication record is present.
func RuleINT11(ctx context.Context, vc *VerificationContext) RuleResult {
	auth := vc.Signature.CalAuth
	if auth == nil {
		return na("INT-11")
	}
	cal := vc.Signature.Calendar
	if cal == nil {
		return fail("INT-11", "NO_CALENDAR_CHAIN", "calendar authentication record present without a calendar chain")
	}
	root, err := merkle.AggregateCalendar(vc.Registry, cal.InputHash, cal.Links)
	if err != nil {
		return fail("INT-11", "AGGREGATION_ERROR", err.Error())
	}
	if !root.Equal(auth.PublishedData.Hash) {
		return fail("INT-11", "CAL_AUTH_HASH_MISMATCH", "calendar authentication record hash does not match calendar chain root")
	}
	if auth.PublishedData.Time != cal.PublicationTime {
		return fail("INT-11", "CAL_AUTH_TIME_MISMATCH", "calendar authentication record time does not match calendar chain publication time")
	}
	return ok("INT-11")
}

// RuleINT12 flags a signature that relies on an aggregation-authentication
// record as its only candidate trust anchor. The core does not implement
// aggregation-time signer-identity verification (spec §9's open question):
// rather than silently passing, it reports VerificationInconclusive when
// that record is present and nothing else in or alongside the signature
// (calendar chain, calendar authentication record, embedded publication, or
// caller-supplied publication) could anchor trust instead. NA when there is
// no aggregation-authentication record, or when one of those alternatives
// is available for the other rules to check.
func RuleINT12(ctx context.Context, vc *VerificationContext) RuleResult {
	if vc.Signature.AggrAuth == nil {
		return na("INT-12")
	}
	if vc.Signature.Calendar != nil || vc.Signature.CalAuth != nil || vc.Signature.Publication != nil || vc.UserPublication != nil {
		return na("INT-12")
	}
	return inconclusive("INT-12", "aggregation authentication record is the only candidate trust anchor; signer-identity verification is not implemented")
}

// resolveAuthCert resolves the certID a calendar authentication record's
// signature selects, returning its DER bytes from the publications file
// first and the PKI collaborator's own trust set second.
func (vc *VerificationContext) resolveAuthCert() (der []byte, found bool, certID string) {
	auth := vc.Signature.CalAuth
	if auth == nil {
		return nil, false, ""
	}
	kind, id := auth.Signature.CertSelector()
	if kind != "id" {
		return nil, false, ""
	}
	if vc.PublicationsFile != nil {
		if der, ok := vc.PublicationsFile.CertByID(id); ok {
			return der, true, id
		}
	}
	if vc.PKI != nil {
		if der, ok := vc.PKI.TrustedCertificate(id); ok {
			return der, true, id
		}
	}
	return nil, false, id
}

// RuleKEY01 checks that the certificate a calendar authentication record
// selects by id exists in the publications file. NA if there is no
// calendar authentication record.
func RuleKEY01(ctx context.Context, vc *VerificationContext) RuleResult {
	auth := vc.Signature.CalAuth
	if auth == nil {
		return na("KEY-01")
	}
	kind, _ := auth.Signature.CertSelector()
	if kind != "id" {
		return fail("KEY-01", "NO_CERT_ID", "calendar authentication record does not select a certificate by id")
	}
	if vc.PublicationsFile == nil {
		return fail("KEY-01", "NO_PUBLICATIONS_FILE", "no publications file available to resolve certificate")
	}
	if _, ok := vc.PublicationsFile.CertByID(auth.Signature.CertID); !ok {
		return fail("KEY-01", "CERT_NOT_FOUND", "certificate id not found in publications file")
	}
	return ok("KEY-01")
}

// RuleKEY02 checks that the PKI signature on the calendar authentication
// record's published-data block verifies under the resolved certificate.
// NA if there is no calendar authentication record.
func RuleKEY02(ctx context.Context, vc *VerificationContext) RuleResult {
	auth := vc.Signature.CalAuth
	if auth == nil {
		return na("KEY-02")
	}
	if vc.PKI == nil {
		return fail("KEY-02", "NO_PKI_COLLABORATOR", "no PKI collaborator configured")
	}
	der, found, _ := vc.resolveAuthCert()
	if !found {
		return fail("KEY-02", "CERT_NOT_FOUND", "certificate not resolvable from publications file or trust configuration")
	}
	if err := vc.PKI.Verify(der, auth.Signature.SigAlgo, auth.Signature.SigValue, auth.PublishedData.RawEncoding); err != nil {
		return fail("KEY-02", "SIGNATURE_INVALID", err.Error())
	}
	return ok("KEY-02")
}

// RuleKEY03 checks that the resolved certificate's validity period covers
// the signature's aggregation time. NA if there is no calendar
// authentication record.
func RuleKEY03(ctx context.Context, vc *VerificationContext) RuleResult {
	auth := vc.Signature.CalAuth
	if auth == nil {
		return na("KEY-03")
	}
	if vc.PKI == nil {
		return fail("KEY-03", "NO_PKI_COLLABORATOR", "no PKI collaborator configured")
	}
	der, found, _ := vc.resolveAuthCert()
	if !found {
		return fail("KEY-03", "CERT_NOT_FOUND", "certificate not resolvable from publications file or trust configuration")
	}
	covers, err := vc.PKI.CertValidityCovers(der, time.Unix(int64(vc.lastAggregationTime()), 0))
	if err != nil {
		return fail("KEY-03", "CERT_PARSE_ERROR", err.Error())
	}
	if !covers {
		return fail("KEY-03", "CERT_NOT_VALID_AT_TIME", "certificate validity period does not cover the aggregation time")
	}
	return ok("KEY-03")
}

// RulePUB01 checks that the publications file contains a publication record
// whose hash equals the signature's embedded publication record. NA if the
// signature carries no publication record.
func RulePUB01(ctx context.Context, vc *VerificationContext) RuleResult {
	pub := vc.Signature.Publication
	if pub == nil {
		return na("PUB-01")
	}
	if vc.PublicationsFile == nil {
		return fail("PUB-01", "NO_PUBLICATIONS_FILE", "no publications file available")
	}
	entry, found := vc.PublicationsFile.PublicationAt(pub.PublishedData.Time)
	if !found || !entry.Hash.Equal(pub.PublishedData.Hash) {
		return fail("PUB-01", "PUBLICATION_NOT_FOUND", "publications file does not contain a matching publication record")
	}
	return ok("PUB-01")
}

// RulePUB02 checks that the publications file contains a publication at or
// after the signature's aggregation time and that extending to it is either
// unnecessary (NA, handled by PUB-01) or permitted. Only applicable when the
// signature carries no embedded publication record.
func RulePUB02(ctx context.Context, vc *VerificationContext) RuleResult {
	if vc.Signature.Publication != nil {
		return na("PUB-02")
	}
	if vc.PublicationsFile == nil {
		return fail("PUB-02", "NO_PUBLICATIONS_FILE", "no publications file available")
	}
	if _, found := vc.PublicationsFile.PublicationAtOrAfter(vc.lastAggregationTime()); !found {
		return fail("PUB-02", "NO_SUITABLE_PUBLICATION", "publications file has no publication at or after the aggregation time")
	}
	if !vc.AllowExtending {
		return fail("PUB-02", "EXTENDING_NOT_PERMITTED", "signature requires extending but extending is not permitted")
	}
	return ok("PUB-02")
}

// RulePUB03 checks that the calendar chain extended to the publications
// file's suitable publication hashes to that publication's root hash. Only
// applicable when the signature carries no embedded publication record.
func RulePUB03(ctx context.Context, vc *VerificationContext) RuleResult {
	if vc.Signature.Publication != nil {
		return na("PUB-03")
	}
	if vc.PublicationsFile == nil {
		return fail("PUB-03", "NO_PUBLICATIONS_FILE", "no publications file available")
	}
	entry, found := vc.PublicationsFile.PublicationAtOrAfter(vc.lastAggregationTime())
	if !found {
		return fail("PUB-03", "NO_SUITABLE_PUBLICATION", "publications file has no publication at or after the aggregation time")
	}
	chain, err := vc.ExtendedCalendarChain(ctx, &entry.Time)
	if err != nil {
		return fail("PUB-03", "EXTEND_FAILED", err.Error())
	}
	root, err := merkle.AggregateCalendar(vc.Registry, chain.InputHash, chain.Links)
	if err != nil {
		return fail("PUB-03", "AGGREGATION_ERROR", err.Error())
	}
	if !root.Equal(entry.Hash) {
		return fail("PUB-03", "PUBLICATION_HASH_MISMATCH", "extended calendar chain does not hash to the publications file's publication")
	}
	return ok("PUB-03")
}

// RuleUSER01 checks a caller-supplied publication against the signature:
// either it matches an embedded publication record directly, or (when times
// differ and extending is permitted) the calendar chain extended to the
// user's publication time hashes to the user's publication hash. NA if no
// user-provided publication was supplied.
func RuleUSER01(ctx context.Context, vc *VerificationContext) RuleResult {
	up := vc.UserPublication
	if up == nil {
		return na("USER-01")
	}
	if pub := vc.Signature.Publication; pub != nil && pub.PublishedData.Time == up.Time {
		if !pub.PublishedData.Hash.Equal(up.Hash) {
			return fail("USER-01", "USER_PUBLICATION_HASH_MISMATCH", "user-provided publication hash does not match signature's embedded publication")
		}
		return ok("USER-01")
	}
	if !vc.AllowExtending {
		return fail("USER-01", "EXTENDING_NOT_PERMITTED", "user-provided publication does not match the signature and extending is not permitted")
	}
	chain, err := vc.ExtendedCalendarChain(ctx, &up.Time)
	if err != nil {
		return fail("USER-01", "EXTEND_FAILED", err.Error())
	}
	root, err := merkle.AggregateCalendar(vc.Registry, chain.InputHash, chain.Links)
	if err != nil {
		return fail("USER-01", "AGGREGATION_ERROR", err.Error())
	}
	if !root.Equal(up.Hash) {
		return fail("USER-01", "USER_PUBLICATION_HASH_MISMATCH", "extended calendar chain does not hash to the user-provided publication")
	}
	return ok("USER-01")
}

// rightSiblings extracts the sibling imprints of a calendar chain's
// right-direction links, in order, skipping metadata links (which never
// carry a sibling imprint).
func rightSiblings(links []merkle.HashChainLink) []hashing.Imprint {
	var out []hashing.Imprint
	for _, l := range links {
		if l.Direction == merkle.Right && len(l.Sibling) > 0 {
			out = append(out, l.Sibling)
		}
	}
	return out
}

// RuleCAL01 checks that the extender's calendar chain (extended to head)
// shares the same right-link sibling sequence as the signature's existing
// calendar chain, guarding against an extender substituting a different
// chain. NA if the signature carries no calendar chain.
func RuleCAL01(ctx context.Context, vc *VerificationContext) RuleResult {
	cal := vc.Signature.Calendar
	if cal == nil {
		return na("CAL-01")
	}
	chain, err := vc.ExtendedCalendarChain(ctx, nil)
	if err != nil {
		return fail("CAL-01", "EXTEND_FAILED", err.Error())
	}
	want := rightSiblings(cal.Links)
	got := rightSiblings(chain.Links)
	if len(want) != len(got) {
		return fail("CAL-01", "CALENDAR_CHAIN_SUBSTITUTED", "extender's calendar chain right-link count diverges from the signature's")
	}
	for i := range want {
		if !want[i].Equal(got[i]) {
			return fail("CAL-01", "CALENDAR_CHAIN_SUBSTITUTED", "extender's calendar chain right-links diverge from the signature's")
		}
	}
	return ok("CAL-01")
}

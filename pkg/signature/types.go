// Package signature implements the typed object graph decoded from a
// signature's TLV tree: aggregation chains, an optional calendar chain, the
// two kinds of authentication record, an optional RFC-3161 legacy record
// and an optional publication record (spec §3).
package signature

import (
	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/merkle"
)

// AggregationChain is one Merkle path segment from a document hash leaf (or
// the previous chain's output) to a per-round aggregator root.
type AggregationChain struct {
	AggregationTime uint64
	ChainIndex      []uint64
	InputData       []byte // RFC-3161 legacy only
	InputHash       hashing.Imprint
	AggrAlgo        hashing.Algorithm
	Links           []merkle.HashChainLink
}

// CalendarChain is the hash chain from an aggregator root to the
// publication root for a later time.
type CalendarChain struct {
	AggregationTime uint64
	PublicationTime uint64
	InputHash       hashing.Imprint
	Links           []merkle.HashChainLink
}

// PublishedData is the common {time, hash} pair referenced by both
// publication records and authentication records.
type PublishedData struct {
	Time        uint64
	Hash        hashing.Imprint
	RawEncoding []byte
}

// SignatureData carries a PKI signature over a PublishedData block plus
// exactly one certificate selector.
type SignatureData struct {
	SigAlgo              string
	SigValue             []byte
	CertID               string
	CertBytes            []byte
	CertRepositoryURI    string
}

// CertSelector identifies which of CertID/CertBytes/CertRepositoryURI is set.
func (s SignatureData) CertSelector() (kind string, value string) {
	switch {
	case s.CertID != "":
		return "id", s.CertID
	case len(s.CertBytes) > 0:
		return "bytes", string(s.CertBytes)
	case s.CertRepositoryURI != "":
		return "uri", s.CertRepositoryURI
	default:
		return "", ""
	}
}

// CalendarAuthenticationRecord anchors a signature to a PKI-signed
// published-data record instead of (or pending) a publications-file lookup.
type CalendarAuthenticationRecord struct {
	PublishedData PublishedData
	Signature     SignatureData
}

// AggregationAuthenticationRecord is the aggregation-time analogue of
// CalendarAuthenticationRecord. Spec §9's open question applies here: the
// core does not guess signer-identity semantics for this record type (see
// verification rule INT-12).
type AggregationAuthenticationRecord struct {
	PublishedData PublishedData
	Signature     SignatureData
}

// PublicationRecord names a published calendar-root hash serving as a trust
// anchor, either embedded in a signature or read from a publications file.
type PublicationRecord struct {
	PublishedData PublishedData
	Refs          []string
}

// RFC3161Record rewraps a legacy RFC-3161 timestamp into the input hash for
// the first aggregation chain. The exact prefix/suffix layout is copied
// from known-good vectors, not invented (spec §9).
type RFC3161Record struct {
	TstInfoPrefix  []byte
	TstInfoSuffix  []byte
	TstInfoAlgo    hashing.Algorithm
	SigAttrPrefix  []byte
	SigAttrSuffix  []byte
	SigAttrAlgo    hashing.Algorithm
	InputHash      hashing.Imprint
}

// LegacyAggregationInput computes the value that must equal the first
// aggregation chain's input hash, per spec §3: "its own input hash +
// prefixes are hashed to yield the aggregation-chain input."
func (r RFC3161Record) LegacyAggregationInput(reg *hashing.Registry) (hashing.Imprint, error) {
	tstHasher, err := reg.NewHasher(r.TstInfoAlgo)
	if err != nil {
		return nil, err
	}
	tstHasher.Write(r.TstInfoPrefix)
	tstHasher.Write([]byte(r.InputHash))
	tstHasher.Write(r.TstInfoSuffix)
	tstDigest := tstHasher.Close()

	sigHasher, err := reg.NewHasher(r.SigAttrAlgo)
	if err != nil {
		return nil, err
	}
	sigHasher.Write(r.SigAttrPrefix)
	sigHasher.Write([]byte(tstDigest))
	sigHasher.Write(r.SigAttrSuffix)
	return sigHasher.Close(), nil
}

// Signature is the root object: the authoritative base TLV plus the typed
// views decoded from it. BaseTLV is retained verbatim so that
// Serialize(Parse(b)) == b for signatures that were not mutated (spec P1);
// only Extend rewrites the calendar-chain subtree of BaseTLV.
type Signature struct {
	BaseTLV []byte

	Chains       []AggregationChain // leaf-to-root order
	Calendar     *CalendarChain
	CalAuth      *CalendarAuthenticationRecord
	AggrAuth     *AggregationAuthenticationRecord
	RFC3161      *RFC3161Record
	Publication  *PublicationRecord
}

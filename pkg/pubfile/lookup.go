package pubfile

import (
	"sort"

	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/pki"
)

// CertByID returns the DER bytes of the certificate record with the given
// id, in O(1) via the parsed file's id-keyed map (spec §4.6).
func (pf *PublicationsFile) CertByID(id string) ([]byte, bool) {
	der, ok := pf.Certs[id]
	return der, ok
}

// PublicationAtOrAfter returns the earliest publication entry with
// Time >= t, in O(log n) via binary search over the strictly increasing
// Publications slice (spec §4.6).
func (pf *PublicationsFile) PublicationAtOrAfter(t uint64) (PublicationEntry, bool) {
	i := sort.Search(len(pf.Publications), func(i int) bool {
		return pf.Publications[i].Time >= t
	})
	if i == len(pf.Publications) {
		return PublicationEntry{}, false
	}
	return pf.Publications[i], true
}

// PublicationAt returns the publication entry whose time exactly matches t.
func (pf *PublicationsFile) PublicationAt(t uint64) (PublicationEntry, bool) {
	entry, ok := pf.PublicationAtOrAfter(t)
	if !ok || entry.Time != t {
		return PublicationEntry{}, false
	}
	return entry, true
}

// VerifySignature checks the file's trailing signature block against
// SignedRange, resolving the signing certificate from the file's own cert
// records first and falling back to p's independently trusted set (spec
// §4.6: "at least one valid certificate matches the configured
// constraints").
func (pf *PublicationsFile) VerifySignature(p pki.PKI) error {
	der, ok := pf.CertByID(pf.Signature.CertID)
	if !ok {
		der, ok = p.TrustedCertificate(pf.Signature.CertID)
	}
	if !ok {
		return kerr.Failure("", "CERT_NOT_FOUND", "signing certificate id not found in file or trust configuration")
	}
	return p.Verify(der, pf.Signature.SigAlgo, pf.Signature.SigValue, pf.SignedRange)
}

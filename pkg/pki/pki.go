// Package pki defines the minimal certificate-validation collaborator
// injected into publications-file and authentication-record verification
// (spec §4.5/§4.6): the core never parses or validates X.509 itself.
package pki

import "time"

// PKI validates a PKI signature block against a certificate and resolves
// certificates trusted independently of any publications file (e.g. from a
// local trust configuration).
type PKI interface {
	// Verify checks that sigValue is a valid signature over data, produced
	// by the public key in certDER, using the named algorithm. It also
	// checks certDER's validity period and any configured subject
	// constraints. Returns a *kerr.Error of Kind Crypto or
	// VerificationFailure on any mismatch.
	Verify(certDER []byte, sigAlgo string, sigValue, data []byte) error

	// TrustedCertificate returns the DER bytes of a certificate known by
	// certID independently of a publications file's own cert records.
	TrustedCertificate(certID string) ([]byte, bool)

	// CertValidityCovers reports whether certDER's validity period covers
	// t, independent of the collaborator's own wall-clock (rule KEY-03
	// checks coverage at the signature's aggregation time, not "now").
	CertValidityCovers(certDER []byte, t time.Time) (bool, error)
}

// Package x509ref is a reference pki.PKI implementation built on the
// standard library's crypto/x509, for callers with no stricter compliance
// requirement than "validate against a configured trust set."
package x509ref

import (
	"crypto/x509"
	"strings"
	"time"

	"github.com/certen/ksiverify/pkg/kerr"
)

// Store is a fixed set of trusted certificates plus optional subject-DN
// constraints (spec §4.6: "at least one valid certificate matches the
// configured constraints, e.g. subject DN").
type Store struct {
	trusted           map[string][]byte // certID -> DER
	allowedSubjectDNs []string          // empty means unconstrained
	now               func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSubjectConstraint restricts Verify to certificates whose subject
// common name or full DN matches one of dns.
func WithSubjectConstraint(dns ...string) Option {
	return func(s *Store) { s.allowedSubjectDNs = dns }
}

// WithClock overrides the validity-period reference clock, for testing.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a Store trusting the given certID-to-DER set.
func New(trusted map[string][]byte, opts ...Option) *Store {
	s := &Store{trusted: trusted}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify implements pki.PKI.
func (s *Store) Verify(certDER []byte, sigAlgo string, sigValue, data []byte) error {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return kerr.Wrap(kerr.Format, "parsing certificate", err)
	}

	now := time.Now()
	if s.now != nil {
		now = s.now()
	}
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return kerr.Failure("", "CERT_NOT_VALID_AT_TIME", "certificate is not within its validity period")
	}

	if len(s.allowedSubjectDNs) > 0 && !s.subjectAllowed(cert) {
		return kerr.Failure("", "CERT_SUBJECT_NOT_TRUSTED", "certificate subject does not match any configured constraint")
	}

	alg := algorithmForName(sigAlgo)
	if alg == x509.UnknownSignatureAlgorithm {
		return kerr.New(kerr.Crypto, "unsupported signature algorithm: "+sigAlgo)
	}
	if err := cert.CheckSignature(alg, data, sigValue); err != nil {
		return kerr.Wrap(kerr.Crypto, "PKI signature verification failed", err)
	}
	return nil
}

func (s *Store) subjectAllowed(cert *x509.Certificate) bool {
	subject := cert.Subject.String()
	cn := cert.Subject.CommonName
	for _, allowed := range s.allowedSubjectDNs {
		if strings.EqualFold(subject, allowed) || strings.EqualFold(cn, allowed) {
			return true
		}
	}
	return false
}

// TrustedCertificate implements pki.PKI.
func (s *Store) TrustedCertificate(certID string) ([]byte, bool) {
	der, ok := s.trusted[certID]
	return der, ok
}

// CertValidityCovers implements pki.PKI.
func (s *Store) CertValidityCovers(certDER []byte, t time.Time) (bool, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return false, kerr.Wrap(kerr.Format, "parsing certificate", err)
	}
	return !t.Before(cert.NotBefore) && !t.After(cert.NotAfter), nil
}

func algorithmForName(name string) x509.SignatureAlgorithm {
	switch name {
	case "SHA256-WITH-RSA", "SHA256WithRSA":
		return x509.SHA256WithRSA
	case "SHA384-WITH-RSA", "SHA384WithRSA":
		return x509.SHA384WithRSA
	case "SHA512-WITH-RSA", "SHA512WithRSA":
		return x509.SHA512WithRSA
	case "ECDSA-WITH-SHA256", "ECDSAWithSHA256":
		return x509.ECDSAWithSHA256
	case "ECDSA-WITH-SHA384", "ECDSAWithSHA384":
		return x509.ECDSAWithSHA384
	case "ECDSA-WITH-SHA512", "ECDSAWithSHA512":
		return x509.ECDSAWithSHA512
	case "ED25519", "Ed25519":
		return x509.PureEd25519
	default:
		return x509.UnknownSignatureAlgorithm
	}
}

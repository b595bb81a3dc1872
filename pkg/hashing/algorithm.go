// Package hashing implements the algorithm registry, the Imprint value type
// and the streaming Hasher interface that the rest of the module builds on.
package hashing

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/certen/ksiverify/pkg/kerr"
)

// Algorithm is a one-byte algorithm identifier as carried in an Imprint.
type Algorithm byte

// Registered algorithm identifiers. Values are arbitrary but stable for this
// module; they do not need to match any external registry since the core
// only has to agree with itself and with the wire bytes it produced.
const (
	SHA256    Algorithm = 0x01
	SHA512    Algorithm = 0x02
	SHA3_256  Algorithm = 0x03
	Keccak256 Algorithm = 0x04
	SM3       Algorithm = 0x05
)

// Status describes an algorithm's trust lifecycle.
type Status int

const (
	// StatusNormal algorithms may be used at any time.
	StatusNormal Status = iota
	// StatusDeprecatedAfter algorithms may not be used to produce new trust
	// after the given time, but signatures made before remain valid.
	StatusDeprecatedAfter
	// StatusObsoleteAfter algorithms must not be trusted for anything after
	// the given time, including pre-existing signatures.
	StatusObsoleteAfter
	// StatusUnknown marks an algorithm id this registry has never heard of.
	StatusUnknown
)

type entry struct {
	name       string
	digestSize int
	newHash    func() hash.Hash
	status     Status
	threshold  time.Time
}

// Registry maps algorithm ids to their digest size and lifecycle status. It
// is process-wide immutable configuration, per the concurrency model: build
// once with DefaultRegistry and share freely across verification contexts.
type Registry struct {
	entries map[Algorithm]entry
}

// DefaultRegistry returns the registry every part of this module uses
// unless a caller overrides it for testing. SHA-256 is the calendar-chain
// algorithm (spec §4.2); the others are registered aggregation-chain
// algorithms so the client can verify signatures produced with any of them.
func DefaultRegistry() *Registry {
	r := &Registry{entries: map[Algorithm]entry{
		SHA256: {
			name:       "SHA-256",
			digestSize: sha256.Size,
			newHash:    sha256.New,
			status:     StatusNormal,
		},
		SHA512: {
			name:       "SHA-512",
			digestSize: sha512.Size,
			newHash:    sha512.New,
			status:     StatusNormal,
		},
		SHA3_256: {
			name:       "SHA3-256",
			digestSize: 32,
			newHash:    sha3.New256,
			status:     StatusNormal,
		},
		Keccak256: {
			name:       "KECCAK-256",
			digestSize: 32,
			newHash:    func() hash.Hash { return crypto.NewKeccakState() },
			status:     StatusNormal,
		},
		SM3: {
			name:       "SM3",
			digestSize: 32,
			// No SM3 implementation is wired into this module; the
			// identifier is reserved so obsolete-signature verification can
			// still report a precise CRYPTO error instead of UNKNOWN_CRITICAL_TAG.
			newHash: nil,
			status:  StatusObsoleteAfter,
		},
	}}
	return r
}

// DeprecateAfter marks alg as deprecated starting at t. Used by tests and by
// deployments that need to pin a different deprecation schedule than the
// compiled-in defaults.
func (r *Registry) DeprecateAfter(alg Algorithm, t time.Time) {
	e := r.entries[alg]
	e.status = StatusDeprecatedAfter
	e.threshold = t
	r.entries[alg] = e
}

// ObsoleteAfter marks alg as obsolete starting at t.
func (r *Registry) ObsoleteAfter(alg Algorithm, t time.Time) {
	e := r.entries[alg]
	e.status = StatusObsoleteAfter
	e.threshold = t
	r.entries[alg] = e
}

// DigestSize returns the digest length in bytes for alg, or (0, false) if
// alg is not registered.
func (r *Registry) DigestSize(alg Algorithm) (int, bool) {
	e, ok := r.entries[alg]
	if !ok {
		return 0, false
	}
	return e.digestSize, true
}

// Name returns a human-readable name for alg, or "" if unregistered.
func (r *Registry) Name(alg Algorithm) string {
	return r.entries[alg].name
}

// StatusAt reports alg's lifecycle status as of t. An unregistered
// algorithm always reports StatusUnknown.
func (r *Registry) StatusAt(alg Algorithm, t time.Time) Status {
	e, ok := r.entries[alg]
	if !ok {
		return StatusUnknown
	}
	switch e.status {
	case StatusDeprecatedAfter, StatusObsoleteAfter:
		if !e.threshold.IsZero() && t.Before(e.threshold) {
			return StatusNormal
		}
		return e.status
	default:
		return e.status
	}
}

// NewHasher returns a streaming Hasher for alg, or an error if alg is not
// registered or carries no implementation (e.g. a reserved-but-unimplemented
// legacy algorithm).
func (r *Registry) NewHasher(alg Algorithm) (*Hasher, error) {
	e, ok := r.entries[alg]
	if !ok || e.newHash == nil {
		return nil, kerr.New(kerr.Crypto, fmt.Sprintf("hashing: algorithm %#x has no implementation", byte(alg)))
	}
	return &Hasher{alg: alg, h: e.newHash()}, nil
}

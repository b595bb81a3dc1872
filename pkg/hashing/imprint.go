package hashing

import (
	"encoding/hex"
	"hash"

	"github.com/certen/ksiverify/pkg/kerr"
)

// Imprint is an algorithm-id-prefixed digest: algo-id ‖ digest-bytes. It is
// value-typed and freely copyable, per the concurrency model - there is no
// reference counting here, unlike the hand-rolled DataHash it is grounded on.
type Imprint []byte

// NewImprint builds an Imprint from an algorithm and a pre-computed digest,
// validating the digest length against the registry.
func NewImprint(reg *Registry, alg Algorithm, digest []byte) (Imprint, error) {
	size, ok := reg.DigestSize(alg)
	if !ok {
		return nil, kerr.New(kerr.Crypto, "unregistered algorithm")
	}
	if len(digest) != size {
		return nil, kerr.New(kerr.Format, "digest length does not match algorithm")
	}
	out := make(Imprint, 0, size+1)
	out = append(out, byte(alg))
	out = append(out, digest...)
	return out, nil
}

// Algorithm returns the imprint's algorithm id.
func (im Imprint) Algorithm() Algorithm {
	if len(im) == 0 {
		return 0
	}
	return Algorithm(im[0])
}

// Digest returns the digest bytes, excluding the algorithm id.
func (im Imprint) Digest() []byte {
	if len(im) < 1 {
		return nil
	}
	return im[1:]
}

// Equal reports byte-for-byte equality - the only equality KSI-style
// imprints define (spec §3).
func (im Imprint) Equal(other Imprint) bool {
	if len(im) != len(other) {
		return false
	}
	for i := range im {
		if im[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate checks that im is well-formed against reg: registered algorithm,
// correct digest length. The algorithm's lifecycle status (deprecated,
// obsolete) is not checked here; see Registry.StatusAt.
func (im Imprint) Validate(reg *Registry) error {
	if len(im) < 1 {
		return kerr.New(kerr.Format, "empty imprint")
	}
	size, ok := reg.DigestSize(im.Algorithm())
	if !ok {
		return kerr.New(kerr.Crypto, "imprint uses unregistered algorithm")
	}
	if len(im.Digest()) != size {
		return kerr.New(kerr.Format, "imprint digest length mismatch")
	}
	return nil
}

// String renders the imprint as lowercase hex, algorithm byte included.
func (im Imprint) String() string {
	return hex.EncodeToString(im)
}

// Hasher streams bytes into a registered hash algorithm and yields an
// Imprint. It replaces the source's vtable-based KSI_DataHasher with a plain
// Go struct around the stdlib hash.Hash.
type Hasher struct {
	alg Algorithm
	h   hash.Hash
}

// Write adds bytes to the running digest. It never returns an error - same
// contract as hash.Hash.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Close finalizes the digest and returns the resulting Imprint. The Hasher
// must not be reused after Close; obtain a new one from the registry.
func (h *Hasher) Close() Imprint {
	digest := h.h.Sum(nil)
	out := make(Imprint, 0, len(digest)+1)
	out = append(out, byte(h.alg))
	out = append(out, digest...)
	return out
}

// HashImprint is a convenience one-shot digest over data.
func HashImprint(reg *Registry, alg Algorithm, data []byte) (Imprint, error) {
	h, err := reg.NewHasher(alg)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Close(), nil
}

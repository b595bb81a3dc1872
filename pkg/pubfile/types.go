// Package pubfile parses and verifies the publications file (spec §4.6):
// a time-ordered sequence of published calendar roots plus a set of trust
// certificates, terminated by a PKI signature over everything before it.
package pubfile

import "github.com/certen/ksiverify/pkg/hashing"

// Header carries the file format version and the time of its first
// publication entry.
type Header struct {
	Version   uint64
	FirstTime uint64
}

// PublicationEntry is one published calendar root.
type PublicationEntry struct {
	Time uint64
	Hash hashing.Imprint
}

// SignatureBlock is the trailing PKI signature over the rest of the file.
type SignatureBlock struct {
	SigAlgo  string
	SigValue []byte
	CertID   string
}

// PublicationsFile is the parsed, verbatim-retained file.
type PublicationsFile struct {
	Raw         []byte // the complete file, as parsed
	SignedRange []byte // bytes the signature covers: everything before the signature block

	Header       Header
	Publications []PublicationEntry // strictly increasing by Time
	Certs        map[string][]byte  // cert id -> DER
	Signature    SignatureBlock
}

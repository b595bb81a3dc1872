package pubfile

import (
	"bytes"
	"fmt"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/tlv"
)

// Parse decodes a publications file. The trailing element must be a
// signature block; every element before it is retained verbatim in
// SignedRange for later signature verification (spec §4.6: "signature
// covers the byte range [start, signature-offset)").
func Parse(reg *hashing.Registry, data []byte) (*PublicationsFile, error) {
	els, err := tlv.ParseAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, kerr.New(kerr.Format, "publications file is empty")
	}

	last := els[len(els)-1]
	if last.Tag != TagSignatureBlock {
		return nil, kerr.New(kerr.Format, "publications file does not end with a signature block")
	}
	sigBlock, err := parseSignatureBlock(last)
	if err != nil {
		return nil, err
	}

	signedElements := els[:len(els)-1]

	pf := &PublicationsFile{
		Raw:         append([]byte(nil), data...),
		SignedRange: tlv.Serialize(signedElements),
		Certs:       make(map[string][]byte),
		Signature:   *sigBlock,
	}

	var haveHeader bool
	for _, el := range signedElements {
		switch el.Tag {
		case TagHeader:
			if haveHeader {
				return nil, kerr.New(kerr.Format, "publications file has more than one header")
			}
			h, err := parseHeader(el)
			if err != nil {
				return nil, err
			}
			pf.Header = *h
			haveHeader = true

		case TagPublicationEntry:
			entry, err := parsePublicationEntry(reg, el)
			if err != nil {
				return nil, err
			}
			if n := len(pf.Publications); n > 0 && entry.Time <= pf.Publications[n-1].Time {
				return nil, kerr.New(kerr.Format, "publication times are not strictly increasing")
			}
			pf.Publications = append(pf.Publications, *entry)

		case TagCertRecord:
			rec, err := parseCertRecord(el)
			if err != nil {
				return nil, err
			}
			if _, dup := pf.Certs[rec.id]; dup {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("duplicate certificate id %q", rec.id))
			}
			pf.Certs[rec.id] = rec.der

		default:
			if !el.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in publications file", el.Tag))
			}
		}
	}

	if !haveHeader {
		return nil, kerr.New(kerr.Format, "publications file missing header")
	}
	if len(pf.Publications) == 0 {
		return nil, kerr.New(kerr.Format, "publications file has no publication entries")
	}
	return pf, nil
}

func parseHeader(el tlv.Element) (*Header, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}
	h := &Header{}
	var haveVersion bool
	for _, c := range children {
		switch c.Tag {
		case TagHeaderVersion:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			h.Version = v
			haveVersion = true
		case TagHeaderFirstTime:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			h.FirstTime = v
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in publications file header", c.Tag))
			}
		}
	}
	if !haveVersion {
		return nil, kerr.New(kerr.Format, "publications file header missing version")
	}
	return h, nil
}

func parsePublicationEntry(reg *hashing.Registry, el tlv.Element) (*PublicationEntry, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}
	entry := &PublicationEntry{}
	var haveTime, haveHash bool
	for _, c := range children {
		switch c.Tag {
		case TagPubEntryTime:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			entry.Time = v
			haveTime = true
		case TagPubEntryHash:
			im, err := c.Imprint(reg)
			if err != nil {
				return nil, err
			}
			entry.Hash = im
			haveHash = true
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in publication entry", c.Tag))
			}
		}
	}
	if !haveTime || !haveHash {
		return nil, kerr.New(kerr.Format, "publication entry missing a mandatory field")
	}
	return entry, nil
}

type certRecord struct {
	id  string
	der []byte
}

func parseCertRecord(el tlv.Element) (*certRecord, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}
	rec := &certRecord{}
	var haveID, haveDER bool
	for _, c := range children {
		switch c.Tag {
		case TagCertRecordID:
			rec.id = c.String()
			haveID = true
		case TagCertRecordDER:
			rec.der = c.Value
			haveDER = true
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in cert record", c.Tag))
			}
		}
	}
	if !haveID || !haveDER {
		return nil, kerr.New(kerr.Format, "cert record missing a mandatory field")
	}
	return rec, nil
}

func parseSignatureBlock(el tlv.Element) (*SignatureBlock, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}
	sb := &SignatureBlock{}
	var haveAlgo, haveValue, haveCertID bool
	for _, c := range children {
		switch c.Tag {
		case TagSigBlockAlgo:
			sb.SigAlgo = c.String()
			haveAlgo = true
		case TagSigBlockValue:
			sb.SigValue = c.Value
			haveValue = true
		case TagSigBlockCertID:
			sb.CertID = c.String()
			haveCertID = true
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in signature block", c.Tag))
			}
		}
	}
	if !haveAlgo || !haveValue || !haveCertID {
		return nil, kerr.New(kerr.Format, "signature block missing a mandatory field")
	}
	return sb, nil
}

package pubfile

import "github.com/certen/ksiverify/pkg/tlv"

// Build serializes a set of header/publication/cert fields plus a signature
// block into a complete publications file. It is used by tests and by
// whatever component issues a publications file in the first place; a
// verifying client only ever calls Parse.
func Build(header Header, pubs []PublicationEntry, certs map[string][]byte, sig SignatureBlock) []byte {
	var elements []tlv.Element

	elements = append(elements, tlv.NewNested(TagHeader, []tlv.Element{
		tlv.New(TagHeaderVersion, tlv.EncodeUint(header.Version)),
		tlv.New(TagHeaderFirstTime, tlv.EncodeUint(header.FirstTime)),
	}))

	for _, p := range pubs {
		elements = append(elements, tlv.NewNested(TagPublicationEntry, []tlv.Element{
			tlv.New(TagPubEntryTime, tlv.EncodeUint(p.Time)),
			tlv.New(TagPubEntryHash, []byte(p.Hash)),
		}))
	}

	for id, der := range certs {
		elements = append(elements, tlv.NewNested(TagCertRecord, []tlv.Element{
			tlv.New(TagCertRecordID, tlv.EncodeString(id)),
			tlv.New(TagCertRecordDER, der),
		}))
	}

	elements = append(elements, tlv.NewNested(TagSignatureBlock, []tlv.Element{
		tlv.New(TagSigBlockAlgo, tlv.EncodeString(sig.SigAlgo)),
		tlv.New(TagSigBlockValue, sig.SigValue),
		tlv.New(TagSigBlockCertID, tlv.EncodeString(sig.CertID)),
	}))

	return tlv.Serialize(elements)
}

package signature

import "github.com/certen/ksiverify/pkg/tlv"

// Build serializes a Signature's typed fields into a fresh base TLV. It is
// used to construct test fixtures and by collaborators (e.g. an aggregator
// response) that hand the core a signature for the first time; after that,
// Parse's retained BaseTLV is authoritative and Extend is the only mutation.
func Build(s *Signature) []byte {
	var children []tlv.Element
	for _, chain := range s.Chains {
		children = append(children, encodeAggregationChain(chain))
	}
	if s.Calendar != nil {
		children = append(children, encodeCalendarChain(s.Calendar))
	}
	if s.CalAuth != nil {
		children = append(children, encodeAuthRecord(TagCalendarAuthenticationRecord, (*authRecord)(s.CalAuth)))
	}
	if s.AggrAuth != nil {
		children = append(children, encodeAuthRecord(TagAggregationAuthenticationRecord, (*authRecord)(s.AggrAuth)))
	}
	if s.RFC3161 != nil {
		children = append(children, encodeRFC3161(s.RFC3161))
	}
	if s.Publication != nil {
		children = append(children, encodePublicationRecord(s.Publication))
	}

	top := tlv.NewNested(TagSignature, children)
	wire := tlv.Serialize([]tlv.Element{top})
	s.BaseTLV = wire
	return wire
}

func encodeAggregationChain(c AggregationChain) tlv.Element {
	children := []tlv.Element{
		tlv.New(TagAggrTime, tlv.EncodeUint(c.AggregationTime)),
	}
	for _, idx := range c.ChainIndex {
		children = append(children, tlv.New(TagChainIndex, tlv.EncodeUint(idx)))
	}
	if c.InputData != nil {
		children = append(children, tlv.New(TagInputData, c.InputData))
	}
	children = append(children,
		tlv.New(TagInputHash, []byte(c.InputHash)),
		tlv.New(TagAggrAlgo, tlv.EncodeUint(uint64(c.AggrAlgo))),
	)
	for _, link := range c.Links {
		children = append(children, encodeLink(link))
	}
	return tlv.NewNested(TagAggregationChain, children)
}

func encodePublishedData(pd PublishedData) tlv.Element {
	children := []tlv.Element{
		tlv.New(TagPublishedDataTime, tlv.EncodeUint(pd.Time)),
		tlv.New(TagPublishedDataHash, []byte(pd.Hash)),
	}
	if pd.RawEncoding != nil {
		children = append(children, tlv.New(TagPublishedDataRaw, pd.RawEncoding))
	}
	return tlv.NewNested(TagPublishedData, children)
}

func encodeSignatureData(sd SignatureData) tlv.Element {
	children := []tlv.Element{
		tlv.New(TagSigValue, sd.SigValue),
	}
	switch kind, value := sd.CertSelector(); kind {
	case "id":
		children = append(children, tlv.New(TagCertID, tlv.EncodeString(value)))
	case "bytes":
		children = append(children, tlv.New(TagCertBytes, []byte(value)))
	case "uri":
		children = append(children, tlv.New(TagCertRepositoryURI, tlv.EncodeString(value)))
	}
	return tlv.NewNested(TagSignatureData, children)
}

func encodeAuthRecord(tag uint16, rec *authRecord) tlv.Element {
	children := []tlv.Element{
		encodePublishedData(rec.PublishedData),
		tlv.New(TagSigAlgo, tlv.EncodeString(rec.Signature.SigAlgo)),
		encodeSignatureData(rec.Signature),
	}
	return tlv.NewNested(tag, children)
}

func encodePublicationRecord(rec *PublicationRecord) tlv.Element {
	children := []tlv.Element{encodePublishedData(rec.PublishedData)}
	for _, ref := range rec.Refs {
		children = append(children, tlv.New(TagPublicationRef, tlv.EncodeString(ref)))
	}
	return tlv.NewNested(TagPublicationRecord, children)
}

func encodeRFC3161(rec *RFC3161Record) tlv.Element {
	children := []tlv.Element{
		tlv.New(TagTstInfoPrefix, rec.TstInfoPrefix),
		tlv.New(TagTstInfoSuffix, rec.TstInfoSuffix),
		tlv.New(TagTstInfoAlgo, tlv.EncodeUint(uint64(rec.TstInfoAlgo))),
		tlv.New(TagSigAttrPrefix, rec.SigAttrPrefix),
		tlv.New(TagSigAttrSuffix, rec.SigAttrSuffix),
		tlv.New(TagSigAttrAlgo, tlv.EncodeUint(uint64(rec.SigAttrAlgo))),
		tlv.New(TagRFCInputHash, []byte(rec.InputHash)),
	}
	return tlv.NewNested(TagRFC3161Record, children)
}

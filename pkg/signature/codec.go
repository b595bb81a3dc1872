package signature

import (
	"bytes"
	"fmt"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/merkle"
	"github.com/certen/ksiverify/pkg/tlv"
)

// Parse decodes a complete signature blob. The base TLV is retained
// verbatim on the returned Signature so that Serialize(result) == data for
// signatures that are not subsequently mutated (spec P1).
func Parse(reg *hashing.Registry, data []byte) (*Signature, error) {
	els, err := tlv.ParseAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(els) != 1 || els[0].Tag != TagSignature {
		return nil, kerr.New(kerr.Format, "expected a single top-level signature container")
	}

	sig := &Signature{BaseTLV: append([]byte(nil), data...)}

	children, err := els[0].Children()
	if err != nil {
		return nil, err
	}

	for _, c := range children {
		switch c.Tag {
		case TagAggregationChain:
			chain, err := parseAggregationChain(reg, c)
			if err != nil {
				return nil, err
			}
			sig.Chains = append(sig.Chains, *chain)
		case TagCalendarChain:
			cal, err := parseCalendarChain(reg, c)
			if err != nil {
				return nil, err
			}
			sig.Calendar = cal
		case TagCalendarAuthenticationRecord:
			rec, err := parseAuthRecord(reg, c)
			if err != nil {
				return nil, err
			}
			sig.CalAuth = (*CalendarAuthenticationRecord)(rec)
		case TagAggregationAuthenticationRecord:
			rec, err := parseAuthRecord(reg, c)
			if err != nil {
				return nil, err
			}
			sig.AggrAuth = (*AggregationAuthenticationRecord)(rec)
		case TagRFC3161Record:
			rec, err := parseRFC3161(reg, c)
			if err != nil {
				return nil, err
			}
			sig.RFC3161 = rec
		case TagPublicationRecord:
			rec, err := parsePublicationRecord(reg, c)
			if err != nil {
				return nil, err
			}
			sig.Publication = rec
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in signature", c.Tag))
			}
		}
	}

	if len(sig.Chains) == 0 {
		return nil, kerr.New(kerr.Format, "signature has no aggregation chains")
	}
	if sig.Publication != nil && sig.Calendar == nil {
		return nil, kerr.New(kerr.Format, "publication record present without a calendar chain")
	}

	return sig, nil
}

// authRecord is the shared shape of Calendar/AggregationAuthenticationRecord,
// decoded once and cast to the appropriately-named type by the caller.
type authRecord CalendarAuthenticationRecord

func parseAggregationChain(reg *hashing.Registry, el tlv.Element) (*AggregationChain, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}

	chain := &AggregationChain{}
	var haveTime, haveHash, haveAlgo bool

	for _, c := range children {
		switch c.Tag {
		case TagAggrTime:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			chain.AggregationTime = v
			haveTime = true
		case TagChainIndex:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			chain.ChainIndex = append(chain.ChainIndex, v)
		case TagInputData:
			chain.InputData = c.Value
		case TagInputHash:
			im, err := c.Imprint(reg)
			if err != nil {
				return nil, err
			}
			chain.InputHash = im
			haveHash = true
		case TagAggrAlgo:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			chain.AggrAlgo = hashing.Algorithm(v)
			haveAlgo = true
		case TagLeftLink:
			link, err := parseLink(merkle.Left, c)
			if err != nil {
				return nil, err
			}
			chain.Links = append(chain.Links, link)
		case TagRightLink:
			link, err := parseLink(merkle.Right, c)
			if err != nil {
				return nil, err
			}
			chain.Links = append(chain.Links, link)
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in aggregation chain", c.Tag))
			}
		}
	}

	if !haveTime || !haveHash || !haveAlgo {
		return nil, kerr.New(kerr.Format, "aggregation chain missing a mandatory field")
	}
	if len(chain.ChainIndex) == 0 {
		return nil, kerr.New(kerr.Format, "aggregation chain has empty chain index")
	}
	if len(chain.Links) == 0 {
		return nil, kerr.New(kerr.Format, "aggregation chain has no links")
	}
	return chain, nil
}

func parseLink(dir merkle.Direction, el tlv.Element) (merkle.HashChainLink, error) {
	children, err := el.Children()
	if err != nil {
		return merkle.HashChainLink{}, err
	}

	link := merkle.HashChainLink{Direction: dir}
	for _, c := range children {
		switch c.Tag {
		case TagLevelCorrection:
			v, err := c.Uint()
			if err != nil {
				return merkle.HashChainLink{}, err
			}
			if v > 255 {
				return merkle.HashChainLink{}, kerr.New(kerr.Format, "level correction exceeds one byte")
			}
			link.LevelCorrection = uint8(v)
		case TagSiblingHash:
			link.Sibling = hashing.Imprint(c.Value)
		case TagMetadata:
			meta, err := merkle.DecodeMetadata(c.Value)
			if err != nil {
				return merkle.HashChainLink{}, err
			}
			link.Metadata = meta
		default:
			if !c.NonCritical {
				return merkle.HashChainLink{}, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in hash chain link", c.Tag))
			}
		}
	}
	if (len(link.Sibling) == 0) == (link.Metadata == nil) {
		return merkle.HashChainLink{}, kerr.New(kerr.Format, "hash chain link must carry exactly one of sibling or metadata")
	}
	return link, nil
}

func parseCalendarChain(reg *hashing.Registry, el tlv.Element) (*CalendarChain, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}

	chain := &CalendarChain{}
	var haveAggrTime, havePubTime, haveHash bool
	for _, c := range children {
		switch c.Tag {
		case TagAggrTime:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			chain.AggregationTime = v
			haveAggrTime = true
		case TagPubTime:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			chain.PublicationTime = v
			havePubTime = true
		case TagInputHash:
			im, err := c.Imprint(reg)
			if err != nil {
				return nil, err
			}
			chain.InputHash = im
			haveHash = true
		case TagLeftLink:
			link, err := parseLink(merkle.Left, c)
			if err != nil {
				return nil, err
			}
			chain.Links = append(chain.Links, link)
		case TagRightLink:
			link, err := parseLink(merkle.Right, c)
			if err != nil {
				return nil, err
			}
			chain.Links = append(chain.Links, link)
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in calendar chain", c.Tag))
			}
		}
	}
	if !haveAggrTime || !havePubTime || !haveHash {
		return nil, kerr.New(kerr.Format, "calendar chain missing a mandatory field")
	}
	return chain, nil
}

func parsePublishedData(reg *hashing.Registry, el tlv.Element) (PublishedData, error) {
	children, err := el.Children()
	if err != nil {
		return PublishedData{}, err
	}
	var pd PublishedData
	var haveTime, haveHash bool
	for _, c := range children {
		switch c.Tag {
		case TagPublishedDataTime:
			v, err := c.Uint()
			if err != nil {
				return PublishedData{}, err
			}
			pd.Time = v
			haveTime = true
		case TagPublishedDataHash:
			im, err := c.Imprint(reg)
			if err != nil {
				return PublishedData{}, err
			}
			pd.Hash = im
			haveHash = true
		case TagPublishedDataRaw:
			pd.RawEncoding = c.Value
		default:
			if !c.NonCritical {
				return PublishedData{}, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in published-data", c.Tag))
			}
		}
	}
	if !haveTime || !haveHash {
		return PublishedData{}, kerr.New(kerr.Format, "published-data missing a mandatory field")
	}
	return pd, nil
}

func parseSignatureData(el tlv.Element) (SignatureData, error) {
	children, err := el.Children()
	if err != nil {
		return SignatureData{}, err
	}
	var sd SignatureData
	for _, c := range children {
		switch c.Tag {
		case TagSigValue:
			sd.SigValue = c.Value
		case TagCertID:
			sd.CertID = c.String()
		case TagCertBytes:
			sd.CertBytes = c.Value
		case TagCertRepositoryURI:
			sd.CertRepositoryURI = c.String()
		default:
			if !c.NonCritical {
				return SignatureData{}, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in signature-data", c.Tag))
			}
		}
	}
	if kind, _ := sd.CertSelector(); kind == "" {
		return SignatureData{}, kerr.New(kerr.Format, "signature-data has no certificate selector")
	}
	return sd, nil
}

func parseAuthRecord(reg *hashing.Registry, el tlv.Element) (*authRecord, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}
	rec := &authRecord{}
	var havePublished, haveSigAlgo, haveSigData bool
	for _, c := range children {
		switch c.Tag {
		case TagPublishedData:
			pd, err := parsePublishedData(reg, c)
			if err != nil {
				return nil, err
			}
			rec.PublishedData = pd
			havePublished = true
		case TagSigAlgo:
			rec.Signature.SigAlgo = c.String()
			haveSigAlgo = true
		case TagSignatureData:
			sd, err := parseSignatureData(c)
			if err != nil {
				return nil, err
			}
			sd.SigAlgo = rec.Signature.SigAlgo
			rec.Signature = sd
			haveSigData = true
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in authentication record", c.Tag))
			}
		}
	}
	if !havePublished || !haveSigData || !haveSigAlgo {
		return nil, kerr.New(kerr.Format, "authentication record missing a mandatory field")
	}
	return rec, nil
}

func parsePublicationRecord(reg *hashing.Registry, el tlv.Element) (*PublicationRecord, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}
	rec := &PublicationRecord{}
	var havePublished bool
	for _, c := range children {
		switch c.Tag {
		case TagPublishedData:
			pd, err := parsePublishedData(reg, c)
			if err != nil {
				return nil, err
			}
			rec.PublishedData = pd
			havePublished = true
		case TagPublicationRef:
			rec.Refs = append(rec.Refs, c.String())
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in publication record", c.Tag))
			}
		}
	}
	if !havePublished {
		return nil, kerr.New(kerr.Format, "publication record missing published-data")
	}
	return rec, nil
}

func parseRFC3161(reg *hashing.Registry, el tlv.Element) (*RFC3161Record, error) {
	children, err := el.Children()
	if err != nil {
		return nil, err
	}
	rec := &RFC3161Record{}
	for _, c := range children {
		switch c.Tag {
		case TagTstInfoPrefix:
			rec.TstInfoPrefix = c.Value
		case TagTstInfoSuffix:
			rec.TstInfoSuffix = c.Value
		case TagTstInfoAlgo:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			rec.TstInfoAlgo = hashing.Algorithm(v)
		case TagSigAttrPrefix:
			rec.SigAttrPrefix = c.Value
		case TagSigAttrSuffix:
			rec.SigAttrSuffix = c.Value
		case TagSigAttrAlgo:
			v, err := c.Uint()
			if err != nil {
				return nil, err
			}
			rec.SigAttrAlgo = hashing.Algorithm(v)
		case TagRFCInputHash:
			im, err := c.Imprint(reg)
			if err != nil {
				return nil, err
			}
			rec.InputHash = im
		default:
			if !c.NonCritical {
				return nil, kerr.New(kerr.Format, fmt.Sprintf("unknown critical tag %#x in RFC-3161 record", c.Tag))
			}
		}
	}
	return rec, nil
}

package signature

// Wire tags, per spec §6 ("tags are illustrative of the design's concrete
// shape"). Top-level container tags are fixed by the spec; sub-element tags
// inside each container are this module's own consistent scheme, since the
// spec only pins down the aggregation-chain/link internals explicitly.
const (
	TagSignature                       = 0x0800
	TagAggregationChain                 = 0x0801
	TagCalendarChain                    = 0x0802
	TagPublicationRecord                = 0x0803
	TagAggregationAuthenticationRecord   = 0x0804
	TagCalendarAuthenticationRecord      = 0x0805
	TagRFC3161Record                    = 0x0806

	// Within an aggregation chain (spec §6).
	TagAggrTime       = 0x02
	TagChainIndex     = 0x03
	TagInputData      = 0x04
	TagInputHash      = 0x05
	TagAggrAlgo       = 0x06
	TagLeftLink       = 0x07
	TagRightLink      = 0x08

	// Within a link (spec §6).
	TagLevelCorrection = 0x01
	TagSiblingHash     = 0x02
	TagMetadata        = 0x03

	// Within a calendar chain - reuses the link tags above.
	TagPubTime = 0x04

	// Within a published-data block (nested inside publication and
	// authentication records).
	TagPublishedDataTime = 0x01
	TagPublishedDataHash = 0x02
	TagPublishedDataRaw  = 0x03

	// Within a publication record.
	TagPublicationRef = 0x09

	// Within an authentication record's signature-data block.
	TagSigAlgo            = 0x0a
	TagSigValue           = 0x01
	TagCertID             = 0x02
	TagCertBytes          = 0x03
	TagCertRepositoryURI  = 0x04
	TagPublishedData      = 0x0b
	TagSignatureData      = 0x0c

	// Within an RFC-3161 record (legacy).
	TagTstInfoPrefix   = 0x01
	TagTstInfoSuffix   = 0x02
	TagTstInfoAlgo     = 0x03
	TagSigAttrPrefix   = 0x04
	TagSigAttrSuffix   = 0x05
	TagSigAttrAlgo     = 0x06
	TagRFCInputHash    = 0x07

	// Within metadata (nested inside a link).
	TagMetaClientID    = 0x01
	TagMetaMachineID   = 0x02
	TagMetaSequenceNr  = 0x03
	TagMetaRequestTime = 0x04
)

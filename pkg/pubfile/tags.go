package pubfile

// Wire tags for the publications file (spec §4.6). The file is a flat
// sequence of sibling TLV elements, not a single enclosing container, so
// that the trailing signature block can cover "all preceding bytes" by
// simply re-serializing everything parsed before it.
const (
	TagHeader           = 0x01
	TagPublicationEntry = 0x02
	TagCertRecord       = 0x03
	TagSignatureBlock   = 0x04

	TagHeaderVersion   = 0x01
	TagHeaderFirstTime = 0x02

	TagPubEntryTime = 0x01
	TagPubEntryHash = 0x02

	TagCertRecordID  = 0x01
	TagCertRecordDER = 0x02

	TagSigBlockAlgo   = 0x01
	TagSigBlockValue  = 0x02
	TagSigBlockCertID = 0x03
)

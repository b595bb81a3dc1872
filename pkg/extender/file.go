package extender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/certen/ksiverify/pkg/cache"
	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/signature"
)

// FileExtender serves calendar chains from a directory of pre-fetched TLV
// fixtures instead of a live service, for offline verification and tests
// (spec's original net_uri.h "file://" scheme, §D.3). Each fixture is named
// "<aggregationTime>_<publicationTime>.tlv", or "<aggregationTime>_head.tlv"
// for a nil publicationTime.
type FileExtender struct {
	dir string
	reg *hashing.Registry
}

// NewFileExtender builds an extender reading calendar-chain fixtures from dir.
func NewFileExtender(dir string, reg *hashing.Registry) *FileExtender {
	return &FileExtender{dir: dir, reg: reg}
}

func (f *FileExtender) fixturePath(aggregationTime uint64, publicationTime *uint64) string {
	pub := "head"
	if publicationTime != nil {
		pub = strconv.FormatUint(*publicationTime, 10)
	}
	return filepath.Join(f.dir, fmt.Sprintf("%d_%s.tlv", aggregationTime, pub))
}

// Extend implements Extender by reading the matching fixture file.
func (f *FileExtender) Extend(ctx context.Context, aggregationTime uint64, publicationTime *uint64) (*signature.CalendarChain, error) {
	pubKey := cache.HeadPublicationTime
	if publicationTime != nil {
		pubKey = *publicationTime
	}
	path := f.fixturePath(aggregationTime, publicationTime)
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, kerr.Wrap(kerr.IO, fmt.Sprintf("reading calendar chain fixture for aggregation_time=%d publication_time=%d", aggregationTime, pubKey), err)
	}
	return signature.ParseCalendarChain(f.reg, body)
}

package cache

import (
	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/ksiverify/pkg/kerr"
)

// CometStore is a Store backed by a github.com/cometbft/cometbft-db handle
// (goleveldb, rocksdb, badgerdb, ...), for deployments that already run one
// of those backends for other state and want the extension cache to share
// it rather than adding bbolt as a second embedded store.
type CometStore struct {
	db dbm.DB
}

// NewCometStore wraps an already-open cometbft-db handle.
func NewCometStore(db dbm.DB) *CometStore {
	return &CometStore{db: db}
}

func (s *CometStore) Get(aggregationTime, publicationTime uint64) ([]byte, bool, error) {
	v, err := s.db.Get(key(aggregationTime, publicationTime))
	if err != nil {
		return nil, false, kerr.Wrap(kerr.IO, "reading extension cache", err)
	}
	return v, v != nil, nil
}

func (s *CometStore) Put(aggregationTime, publicationTime uint64, calendarChainTLV []byte) error {
	if err := s.db.SetSync(key(aggregationTime, publicationTime), calendarChainTLV); err != nil {
		return kerr.Wrap(kerr.IO, "writing extension cache", err)
	}
	return nil
}

func (s *CometStore) Close() error {
	if err := s.db.Close(); err != nil {
		return kerr.Wrap(kerr.IO, "closing cometbft-db extension cache", err)
	}
	return nil
}

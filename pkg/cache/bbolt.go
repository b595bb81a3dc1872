package cache

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/ksiverify/pkg/kerr"
)

var extensionBucket = []byte("extension_cache")

// BoltStore is a Store backed by a local bbolt file, for single-process
// deployments that want a persistent cache without a database dependency.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt-backed Store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, kerr.Wrap(kerr.IO, fmt.Sprintf("opening bbolt cache at %q", path), err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(extensionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, kerr.Wrap(kerr.IO, "creating extension cache bucket", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(aggregationTime, publicationTime uint64) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(extensionBucket).Get(key(aggregationTime, publicationTime))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, kerr.Wrap(kerr.IO, "reading extension cache", err)
	}
	return value, value != nil, nil
}

func (s *BoltStore) Put(aggregationTime, publicationTime uint64, calendarChainTLV []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(extensionBucket).Put(key(aggregationTime, publicationTime), calendarChainTLV)
	})
	if err != nil {
		return kerr.Wrap(kerr.IO, "writing extension cache", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return kerr.Wrap(kerr.IO, "closing bbolt cache", err)
	}
	return nil
}

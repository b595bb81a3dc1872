// Package cache provides the per-(aggregation-time, publication-time)
// extension cache a verification context uses to avoid re-querying the
// extender for a chain it has already fetched (spec §4.5: "results must be
// cached per (aggregation-time, publication-time) tuple within a
// verification context to avoid redundant network work").
package cache

import "encoding/binary"

// HeadPublicationTime is the key sentinel for "extend to the latest
// available calendar record", matching the extender contract's optional
// publication-time argument (spec §4.5).
const HeadPublicationTime = ^uint64(0)

// Store persists extended calendar-chain TLV bytes keyed by the
// (aggregationTime, publicationTime) tuple that produced them.
type Store interface {
	Get(aggregationTime, publicationTime uint64) ([]byte, bool, error)
	Put(aggregationTime, publicationTime uint64, calendarChainTLV []byte) error
	Close() error
}

// key encodes the lookup tuple as 16 big-endian bytes, suitable for both a
// bbolt bucket key and a flat cometbft-db key.
func key(aggregationTime, publicationTime uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], aggregationTime)
	binary.BigEndian.PutUint64(buf[8:], publicationTime)
	return buf
}

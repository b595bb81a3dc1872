package extender

import (
	"context"
	"log"

	"github.com/certen/ksiverify/pkg/cache"
	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/signature"
)

// CachingExtender decorates an Extender with a cache.Store, so repeated
// requests for the same (aggregationTime, publicationTime) tuple within a
// verification context never reach the network twice (spec §4.5).
type CachingExtender struct {
	next   Extender
	store  cache.Store
	reg    *hashing.Registry
	logger *log.Logger
}

// NewCachingExtender wraps next with store. reg is used to decode cached
// calendar-chain bytes back into a signature.CalendarChain on a cache hit.
func NewCachingExtender(next Extender, store cache.Store, reg *hashing.Registry, logger *log.Logger) *CachingExtender {
	if logger == nil {
		logger = log.New(log.Writer(), "[Extender] ", log.LstdFlags)
	}
	return &CachingExtender{next: next, store: store, reg: reg, logger: logger}
}

// Extend returns a cached chain when one exists for the tuple, otherwise
// delegates to the wrapped Extender and caches the result before returning.
func (c *CachingExtender) Extend(ctx context.Context, aggregationTime uint64, publicationTime *uint64) (*signature.CalendarChain, error) {
	pubKey := cache.HeadPublicationTime
	if publicationTime != nil {
		pubKey = *publicationTime
	}

	if cached, ok, err := c.store.Get(aggregationTime, pubKey); err != nil {
		c.logger.Printf("cache lookup failed for aggregation_time=%d publication_time=%d: %v", aggregationTime, pubKey, err)
	} else if ok {
		return signature.ParseCalendarChain(c.reg, cached)
	}

	chain, err := c.next.Extend(ctx, aggregationTime, publicationTime)
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(aggregationTime, pubKey, signature.EncodeCalendarChain(chain)); err != nil {
		c.logger.Printf("cache write failed for aggregation_time=%d publication_time=%d: %v", aggregationTime, pubKey, err)
	}

	return chain, nil
}

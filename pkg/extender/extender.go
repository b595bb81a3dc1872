// Package extender defines the Extender collaborator (spec §4.5): the
// transport that fetches a calendar chain from an aggregation time to a
// publication time (or to the latest available record). The core never
// blocks on its own network I/O; it only calls out through this interface.
package extender

import (
	"context"

	"github.com/certen/ksiverify/pkg/signature"
)

// Extender fetches the calendar chain linking aggregationTime to
// publicationTime. A nil publicationTime requests the chain to the latest
// available calendar record ("publication-time = head").
type Extender interface {
	Extend(ctx context.Context, aggregationTime uint64, publicationTime *uint64) (*signature.CalendarChain, error)
}

package extender

import (
	"context"
	"log"

	"github.com/certen/ksiverify/pkg/cache"
	"github.com/certen/ksiverify/pkg/database"
	"github.com/certen/ksiverify/pkg/signature"
)

// auditStore is the subset of *database.Client an AuditingExtender needs,
// so tests can substitute a fake instead of a live postgres connection.
type auditStore interface {
	RecordExtensionRequest(ctx context.Context, req database.NewExtensionAuditEntry) (database.NullUUID, error)
	CompleteExtensionRequest(ctx context.Context, id database.NullUUID, calendarChain []byte) error
	FailExtensionRequest(ctx context.Context, id database.NullUUID, msg string) error
}

// AuditingExtender decorates an Extender with an audit-log entry per
// request, recorded through database.Client's extension_requests table
// (spec §4.5's extender collaborator, archive side). Mirrors
// CachingExtender's decorator shape: wraps next, never changes its result.
type AuditingExtender struct {
	next        Extender
	store       auditStore
	extenderURI string
	logger      *log.Logger
}

// NewAuditingExtender wraps next with an audit trail recorded against
// store. extenderURI is recorded on each audit row so the trail survives a
// later change of extender endpoint.
func NewAuditingExtender(next Extender, store auditStore, extenderURI string, logger *log.Logger) *AuditingExtender {
	if logger == nil {
		logger = log.New(log.Writer(), "[Extender] ", log.LstdFlags)
	}
	return &AuditingExtender{next: next, store: store, extenderURI: extenderURI, logger: logger}
}

// Extend records a pending audit row, delegates to the wrapped Extender,
// and marks the row succeeded or failed with the outcome. An audit-logging
// failure is logged, never returned: the audit trail must not block
// verification.
func (a *AuditingExtender) Extend(ctx context.Context, aggregationTime uint64, publicationTime *uint64) (*signature.CalendarChain, error) {
	pubKey := cache.HeadPublicationTime
	if publicationTime != nil {
		pubKey = *publicationTime
	}

	id, err := a.store.RecordExtensionRequest(ctx, database.NewExtensionAuditEntry{
		AggregationTime: aggregationTime,
		PublicationTime: pubKey,
		ExtenderURI:     a.extenderURI,
	})
	if err != nil {
		a.logger.Printf("recording extension audit entry failed: %v", err)
	}

	chain, extendErr := a.next.Extend(ctx, aggregationTime, publicationTime)

	if err == nil {
		if extendErr != nil {
			if cerr := a.store.FailExtensionRequest(ctx, id, extendErr.Error()); cerr != nil {
				a.logger.Printf("recording failed extension audit entry: %v", cerr)
			}
		} else if cerr := a.store.CompleteExtensionRequest(ctx, id, signature.EncodeCalendarChain(chain)); cerr != nil {
			a.logger.Printf("recording completed extension audit entry: %v", cerr)
		}
	}

	return chain, extendErr
}

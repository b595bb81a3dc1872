// Copyright 2025 Certen Protocol
//
// Database types for the publications-file cache and the extension audit
// log. These map directly to the schema in migrations/0001_init.sql.

package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// PUBLICATION CACHE
// ============================================================================

// PublicationEntry is a single published calendar root, imported from a
// publications file or received via the extender, cached so a later
// verification does not need to refetch it.
// Maps to: publications table.
type PublicationEntry struct {
	PublicationTime   uint64 `db:"publication_time" json:"publication_time"`
	PublicationHash   []byte `db:"publication_hash" json:"publication_hash"` // algo-id || digest imprint
	PublicationString string `db:"publication_string" json:"publication_string"`
	SourceURI         string `db:"source_uri" json:"source_uri"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// NewPublicationEntry is the insert shape for PublicationEntry (CreatedAt is
// assigned by the database).
type NewPublicationEntry struct {
	PublicationTime   uint64
	PublicationHash   []byte
	PublicationString string
	SourceURI         string
}

// ============================================================================
// TRUSTED CERTIFICATES
// ============================================================================

// TrustedCertificateRecord is an X.509 certificate accepted for validating
// calendar/aggregation authentication records, either embedded in a trust
// configuration file or imported from a publications file's certificate
// records.
// Maps to: trusted_certificates table.
type TrustedCertificateRecord struct {
	CertID     string    `db:"cert_id" json:"cert_id"`
	Subject    string    `db:"subject" json:"subject"`
	NotBefore  time.Time `db:"not_before" json:"not_before"`
	NotAfter   time.Time `db:"not_after" json:"not_after"`
	DER        []byte    `db:"der" json:"der"`
	Source     string    `db:"source" json:"source"` // "trust_config" | "publications_file"
	ImportedAt time.Time `db:"imported_at" json:"imported_at"`
}

// NewTrustedCertificateRecord is the insert shape for TrustedCertificateRecord.
type NewTrustedCertificateRecord struct {
	CertID  string
	Subject string
	NotBefore time.Time
	NotAfter  time.Time
	DER     []byte
	Source  string
}

// ============================================================================
// EXTENSION AUDIT LOG
// ============================================================================

// ExtensionStatus is the lifecycle of an extension request issued against an
// Extender collaborator (spec §4.5).
type ExtensionStatus string

const (
	ExtensionStatusPending   ExtensionStatus = "pending"
	ExtensionStatusSucceeded ExtensionStatus = "succeeded"
	ExtensionStatusFailed    ExtensionStatus = "failed"
)

// ExtensionAuditEntry records one Extend(aggregationTime, publicationTime)
// round trip as an audit record. Nothing in this module reads these rows
// back; the extender-chain cache lives in pkg/cache.
// Maps to: extension_requests table.
type ExtensionAuditEntry struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AggregationTime uint64          `db:"aggregation_time" json:"aggregation_time"`
	PublicationTime uint64          `db:"publication_time" json:"publication_time"`
	ExtenderURI     string          `db:"extender_uri" json:"extender_uri"`
	Status          ExtensionStatus `db:"status" json:"status"`
	ErrorMessage    sql.NullString  `db:"error_message" json:"error_message,omitempty"`
	CalendarChain   []byte          `db:"calendar_chain" json:"calendar_chain,omitempty"` // serialized TLV subtree
	RequestedAt     time.Time       `db:"requested_at" json:"requested_at"`
	CompletedAt     sql.NullTime    `db:"completed_at" json:"completed_at,omitempty"`
}

// NewExtensionAuditEntry is the insert shape for ExtensionAuditEntry.
type NewExtensionAuditEntry struct {
	AggregationTime uint64
	PublicationTime uint64
	ExtenderURI     string
}

// NullUUID re-exports uuid.NullUUID for callers that only import this package.
type NullUUID = uuid.NullUUID

// ParseUUID parses s as a UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// NewUUID generates a new random UUID for a new record.
func NewUUID() uuid.UUID {
	return uuid.New()
}

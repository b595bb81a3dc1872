// Copyright 2025 Certen Protocol
//
// Repository methods binding Client to the domain types in types.go: the
// extension-request audit trail and the publications-file/trust-anchor
// caches it backs.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordExtensionRequest inserts a pending ExtensionAuditEntry for an
// Extend(aggregationTime, publicationTime) call about to be issued, and
// returns its id for the matching CompleteExtensionRequest/
// FailExtensionRequest call.
func (c *Client) RecordExtensionRequest(ctx context.Context, req NewExtensionAuditEntry) (NullUUID, error) {
	id := NewUUID()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO extension_requests (id, aggregation_time, publication_time, extender_uri, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, req.AggregationTime, req.PublicationTime, req.ExtenderURI, ExtensionStatusPending, time.Now())
	if err != nil {
		return NullUUID{}, fmt.Errorf("recording extension request: %w", err)
	}
	return NullUUID{UUID: id, Valid: true}, nil
}

// CompleteExtensionRequest marks an extension request succeeded and stores
// the resulting serialized calendar-chain TLV subtree.
func (c *Client) CompleteExtensionRequest(ctx context.Context, id NullUUID, calendarChain []byte) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE extension_requests
		SET status = $1, calendar_chain = $2, completed_at = $3
		WHERE id = $4`,
		ExtensionStatusSucceeded, calendarChain, time.Now(), id.UUID)
	if err != nil {
		return fmt.Errorf("completing extension request: %w", err)
	}
	return checkRowAffected(res, ErrExtensionRequestNotFound)
}

// FailExtensionRequest marks an extension request failed with msg.
func (c *Client) FailExtensionRequest(ctx context.Context, id NullUUID, msg string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE extension_requests
		SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4`,
		ExtensionStatusFailed, sql.NullString{String: msg, Valid: msg != ""}, time.Now(), id.UUID)
	if err != nil {
		return fmt.Errorf("failing extension request: %w", err)
	}
	return checkRowAffected(res, ErrExtensionRequestNotFound)
}

// UpsertPublicationEntry caches a published calendar root, so later
// verifications against the same publication time are served without
// re-parsing the whole publications file.
func (c *Client) UpsertPublicationEntry(ctx context.Context, entry NewPublicationEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO publications (publication_time, publication_hash, publication_string, source_uri, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (publication_time) DO UPDATE
		SET publication_hash = EXCLUDED.publication_hash,
		    publication_string = EXCLUDED.publication_string,
		    source_uri = EXCLUDED.source_uri`,
		entry.PublicationTime, entry.PublicationHash, entry.PublicationString, entry.SourceURI, time.Now())
	if err != nil {
		return fmt.Errorf("upserting publication entry: %w", err)
	}
	return nil
}

// PublicationByTime returns the cached publication entry for the exact
// publication time, or ErrPublicationNotFound.
func (c *Client) PublicationByTime(ctx context.Context, publicationTime uint64) (PublicationEntry, error) {
	var p PublicationEntry
	err := c.db.QueryRowContext(ctx, `
		SELECT publication_time, publication_hash, publication_string, source_uri, created_at
		FROM publications WHERE publication_time = $1`, publicationTime,
	).Scan(&p.PublicationTime, &p.PublicationHash, &p.PublicationString, &p.SourceURI, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return PublicationEntry{}, ErrPublicationNotFound
	}
	if err != nil {
		return PublicationEntry{}, fmt.Errorf("querying publication entry: %w", err)
	}
	return p, nil
}

// TrustedCertificateByID returns the trusted certificate record matching
// certID, or ErrCertificateNotFound.
func (c *Client) TrustedCertificateByID(ctx context.Context, certID string) (TrustedCertificateRecord, error) {
	var r TrustedCertificateRecord
	err := c.db.QueryRowContext(ctx, `
		SELECT cert_id, subject, not_before, not_after, der, source, imported_at
		FROM trusted_certificates WHERE cert_id = $1`, certID,
	).Scan(&r.CertID, &r.Subject, &r.NotBefore, &r.NotAfter, &r.DER, &r.Source, &r.ImportedAt)
	if err == sql.ErrNoRows {
		return TrustedCertificateRecord{}, ErrCertificateNotFound
	}
	if err != nil {
		return TrustedCertificateRecord{}, fmt.Errorf("querying trusted certificate: %w", err)
	}
	return r, nil
}

// InsertTrustedCertificate records a trust-configuration or
// publications-file-derived certificate for audit purposes.
func (c *Client) InsertTrustedCertificate(ctx context.Context, rec NewTrustedCertificateRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO trusted_certificates (cert_id, subject, not_before, not_after, der, source, imported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cert_id) DO NOTHING`,
		rec.CertID, rec.Subject, rec.NotBefore, rec.NotAfter, rec.DER, rec.Source, time.Now())
	if err != nil {
		return fmt.Errorf("inserting trusted certificate: %w", err)
	}
	return nil
}

func checkRowAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is returned when a requested entity is not found in the database.
	ErrNotFound = errors.New("entity not found")

	// ErrPublicationNotFound is returned when no cached publication entry
	// matches the requested publication time.
	ErrPublicationNotFound = errors.New("publication entry not found")

	// ErrCertificateNotFound is returned when no trusted certificate matches
	// the requested certificate id.
	ErrCertificateNotFound = errors.New("trusted certificate not found")

	// ErrExtensionRequestNotFound is returned when no extension audit entry
	// matches the requested id.
	ErrExtensionRequestNotFound = errors.New("extension request not found")
)

package airtable

import "errors"

// Common Airtable destination errors
var (
	// ErrMissingExternalID is returned when a record without a Sellsy invoice
	// id reaches the upsert engine. Such records are never written.
	ErrMissingExternalID = errors.New("record has no external id")

	// ErrUpsertFailed is returned when the destination API rejects a create
	// or update.
	ErrUpsertFailed = errors.New("airtable upsert failed")

	// ErrSearchFailed is returned when a formula-based record search fails.
	ErrSearchFailed = errors.New("airtable search failed")
)

package models

// InvoiceRecord is the fixed destination-side shape of a Sellsy invoice.
// Field names map onto the Airtable table columns via airtable.Fields.
type InvoiceRecord struct {
	// Core identifiers
	ExternalID string // Sellsy invoice id, natural key for upserts (required)
	Number     string // Human-readable invoice number/reference

	// Parties
	ClientName string // Counterparty display name
	ClientID   string // Sellsy client id (empty when unknown)

	// Dates
	Date string // Creation date, YYYY-MM-DD

	// Amounts
	AmountExclTax float64 // Amount excluding tax
	AmountInclTax float64 // Amount including tax

	// Status
	Status string // Provider status string, passed through

	// Links
	URL    string // Deep link into the Sellsy document UI
	PDFURL string // Direct PDF link when the provider exposes one
}

// HasExternalID reports whether the record carries the natural key required
// for any destination write.
func (r *InvoiceRecord) HasExternalID() bool {
	return r != nil && r.ExternalID != ""
}

package sellsy

import "errors"

// Common Sellsy API errors
var (
	// ErrAuthFailed is returned when the OAuth2 client-credentials exchange
	// fails, either because the credentials are invalid or the token endpoint
	// is unreachable. Fatal to a whole batch run.
	ErrAuthFailed = errors.New("sellsy authentication failed")

	// ErrNotFound is returned when a requested invoice does not exist.
	ErrNotFound = errors.New("sellsy invoice not found")

	// ErrFetchFailed is returned when an invoice list or detail fetch fails
	// after the bounded retries. Non-fatal: the item (or the remainder of the
	// page loop) is skipped and accumulated results are still returned.
	ErrFetchFailed = errors.New("sellsy invoice fetch failed")

	// ErrPDFUnavailable is returned when neither the embedded PDF link nor the
	// document-download endpoint yields a PDF for an invoice.
	ErrPDFUnavailable = errors.New("sellsy invoice PDF unavailable")
)

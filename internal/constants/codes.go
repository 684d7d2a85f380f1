package constants

// Error codes used in API responses.
// These are the machine-readable codes returned in the "error" field.
const (
	CodeInternalError = "INTERNAL_ERROR"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeRateLimited   = "RATE_LIMITED"

	// Success codes
	CodeLinksFound = "LINKS_FOUND"
	CodeIndex      = "INDEX"
)

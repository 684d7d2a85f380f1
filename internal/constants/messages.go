package constants

// Error messages used in API responses.
// These are the human-readable messages returned in the "message" field.
const (
	MsgInternalError = "An internal error occurred"
	MsgUnauthorized  = "Unauthorized"
	MsgRateLimited   = "Too many requests, try again later"
)

// Flash messages shown after the form-based link actions.
const (
	FlashEmptyURL      = "Please enter a valid URL"
	FlashInvalidURL    = "Invalid URL format"
	FlashCreateFailed  = "An error occurred while creating the short URL"
	FlashCreatedPrefix = "Short URL created: "
	FlashDeleted       = "URL deleted successfully"
	FlashDeleteFailed  = "Failed to delete URL"
)

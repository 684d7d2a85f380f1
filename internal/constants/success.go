package constants

import "net/http"

// APISuccess represents a standardized API success response with code and HTTP status.
// Use these predefined success constants for consistent API responses across the application.
type APISuccess struct {
	Code   string
	Status int
}

var (
	SuccessLinksFound = APISuccess{
		Code:   CodeLinksFound,
		Status: http.StatusOK,
	}
	SuccessIndex = APISuccess{
		Code:   CodeIndex,
		Status: http.StatusOK,
	}
)

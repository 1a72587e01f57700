package remote

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no base URL is set.
var ErrNotConfigured = errors.New("remote api not configured")

// APIError is a non-2xx response or a response with success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote api: status %d", e.Status)
	}
	return fmt.Sprintf("remote api: status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Temporary reports whether retrying the call may succeed.
func Temporary(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 0 || apiErr.Status == 408 || apiErr.Status == 429 || apiErr.Status >= 500
	}
	return true
}

package mailtm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoDomains is returned when the provider has no usable sending domains
var ErrNoDomains = errors.New("mailtm: no active public domains available")

// APIError is a non-2xx response from the provider
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("mailtm: %v %v: %v", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("mailtm: %v %v", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the provider
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 from the provider
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsAccountGone reports whether err means the account no longer exists on the
// provider side. Callers should treat this as an authoritative expiry signal
// and reset local state.
func IsAccountGone(err error) bool {
	if IsNotFound(err) || IsUnauthorized(err) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusGone
}

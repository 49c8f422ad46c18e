package carriers

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnsupportedCarrier      = errors.New("carriers: unsupported carrier")
	ErrMissingCredentials      = errors.New("carriers: missing credentials")
	ErrInvalidResponse         = errors.New("carriers: invalid carrier response")
	ErrReauthorizationRequired = errors.New("carriers: no refresh token available, re-authorize the carrier account")
	ErrConfigurationNotFound   = errors.New("carriers: carrier configuration not found")
	ErrLabelNotAvailable       = errors.New("carriers: label not available")
)

// CarrierError is returned for any non-2xx carrier response. Body holds the
// raw vendor response.
type CarrierError struct {
	Carrier    string
	Operation  string
	StatusCode int
	Body       string
}

func (e *CarrierError) Error() string {
	return fmt.Sprintf("%s %s failed (status %d): %s", e.Carrier, e.Operation, e.StatusCode, e.Body)
}

// IsAuthFailure reports whether the carrier rejected the credentials.
func (e *CarrierError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// isAuthFailure unwraps err looking for a CarrierError auth rejection.
func isAuthFailure(err error) bool {
	var ce *CarrierError
	return errors.As(err, &ce) && ce.IsAuthFailure()
}

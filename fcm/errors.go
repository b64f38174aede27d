package fcm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRegistrationFailed is returned when every GCM registration attempt
// produced an error response.
var ErrRegistrationFailed = errors.New("registration has failed")

// FormatError reports a malformed credential string handed to
// ParseDeviceIdentity.
type FormatError struct {
	// Reason describes the structural problem when no specific keys are at
	// fault.
	Reason string

	// MissingKeys lists required keys that could not be extracted.
	MissingKeys []string
}

func (e *FormatError) Error() string {
	if len(e.MissingKeys) > 0 {
		return fmt.Sprintf("malformed credentials: missing %s", strings.Join(e.MissingKeys, ", "))
	}
	return "malformed credentials: " + e.Reason
}

// AuthError reports that the installation service did not return a usable
// auth token. Body carries the raw response to aid diagnosis.
type AuthError struct {
	Body string
}

func (e *AuthError) Error() string {
	return "installation service returned no auth token: " + e.Body
}

package session

import (
	"errors"
	"fmt"
)

// AuthError reports that the token endpoint refused the refresh token, or
// could not be reached after the single transient retry. It is fatal for a
// run: the operator has to re-authorize the app out of band.
type AuthError struct {
	// StatusCode is the HTTP status of the token endpoint, 0 if none.
	StatusCode int

	// Code is the OAuth error code, e.g. "invalid_grant".
	Code string

	// Cause is the underlying error.
	Cause error
}

// Error never includes token values.
func (e *AuthError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("authorization failed: token endpoint returned %s (status %d)", e.Code, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("authorization failed: token endpoint returned status %d", e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("authorization failed: %v", e.Cause)
	default:
		return "authorization failed"
	}
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

package fetcher

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is the cause of a FetchError when the API kept rejecting
// the access token after a re-authorization.
var ErrUnauthorized = errors.New("access token rejected after re-authorization")

// ErrUnexpectedResponse is the cause of a FetchError when a page body does
// not have the query response shape.
var ErrUnexpectedResponse = errors.New("unexpected response shape")

// FetchError reports that a page could not be retrieved. Any FetchError
// aborts the run; receipts fetched before it are discarded.
type FetchError struct {
	// StartPosition is the STARTPOSITION of the failed page.
	StartPosition int

	// StatusCode is the last HTTP status seen, 0 if no response arrived.
	StatusCode int

	// Attempts is the number of requests made for the page.
	Attempts int

	// Detail is the remote fault message, if any.
	Detail string

	// Cause is the underlying error.
	Cause error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch failed for page at position %d", e.StartPosition)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

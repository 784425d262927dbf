package auth

import (
	"errors"
	"fmt"
)

// ErrAuthExpired indicates a silent refresh failed (revoked or invalid
// refresh token). Only interactive re-consent recovers from it; the session
// never retries a refresh silently more than once per EnsureValid call.
var ErrAuthExpired = errors.New("auth: session expired, re-consent required")

// ErrNotLoggedIn indicates no stored credential exists and the session was
// built without a consent flow, so it cannot acquire one.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// StorageError reports a credential file that could not be written. It is
// recoverable: the session keeps working for the current run but is not
// persisted, so the next run re-consents.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("auth: persisting credential to %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConsentError reports a failed or cancelled interactive consent flow.
// Fatal to the calling operation; the message is surfaced to the user verbatim.
type ConsentError struct {
	Reason string
	Err    error
}

func (e *ConsentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: consent flow failed: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("auth: consent flow failed: %s", e.Reason)
}

func (e *ConsentError) Unwrap() error {
	return e.Err
}

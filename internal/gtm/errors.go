// Package gtm is a path-addressed client for the Google Tag Manager v2 REST
// API. Entities are opaque JSON objects owned by the remote service; the
// client passes them through untouched and normalizes every transport
// failure into a single RequestError shape.
package gtm

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, gtm.ErrNotFound) to check.
var (
	ErrBadRequest    = errors.New("gtm: bad request")
	ErrUnauthorized  = errors.New("gtm: unauthorized")
	ErrForbidden     = errors.New("gtm: forbidden")
	ErrNotFound      = errors.New("gtm: not found")
	ErrConflict      = errors.New("gtm: conflict")
	ErrQuotaExceeded = errors.New("gtm: quota exceeded")
	ErrServerError   = errors.New("gtm: server error")
)

// RequestError is the single error shape every operation returns for a
// remote failure. It carries the operation name and resource path so a
// caller handling many entity kinds can report precisely, plus the remote
// diagnostic and a status sentinel for errors.Is.
type RequestError struct {
	Op         string
	Path       string
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gtm: %s %s: HTTP %d: %s", e.Op, e.Path, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("gtm: %s %s: %s", e.Op, e.Path, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes with no dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrQuotaExceeded
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

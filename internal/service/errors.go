package service

import (
	"errors"
	"fmt"
)

// ErrClientInput matches every *InputError via errors.Is.
var ErrClientInput = errors.New("invalid proxy request")

// Client input failures, matched with errors.Is.
var (
	ErrMissingParameter  = &InputError{Message: "Missing ?url= parameter in proxy request."}
	ErrInvalidURL        = &InputError{Message: "Invalid URL format."}
	ErrUnsupportedScheme = &InputError{Message: "Only HTTP/HTTPS URLs are allowed."}
)

// ErrTooManyRedirects is returned when the redirect chain reaches MaxRedirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// InputError is a rejected inbound request. Message is safe to return to the caller.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrClientInput or an InputError with the same message.
func (e *InputError) Is(target error) bool {
	if target == ErrClientInput {
		return true
	}
	other, ok := target.(*InputError)
	return ok && other.Message == e.Message
}

// withCause returns a copy of e carrying the underlying cause.
func (e *InputError) withCause(err error) *InputError {
	return &InputError{Message: e.Message, Err: err}
}

// UpstreamError reports a hop that failed before any response was received.
type UpstreamError struct {
	Hop int
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("hop %d to %s: %v", e.Hop, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

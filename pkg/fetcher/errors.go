package fetcher

import (
	"errors"
	"fmt"
)

// Common errors returned by the fetcher.
var (
	// ErrBotDetected matches every *BotDetectedError.
	ErrBotDetected = errors.New("bot detection triggered")

	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport error")

	// ErrClosed is returned by Fetch after Close.
	ErrClosed = errors.New("fetcher closed")
)

// BotDetectedError is returned when the source kept answering with a
// challenge redirect after all retries.
type BotDetectedError struct {
	// Location is the redirect target of the last attempt.
	Location string

	// Attempts is the number of requests made, including the first.
	Attempts int

	LastStatus int
}

// Error implements the error interface.
func (e *BotDetectedError) Error() string {
	return fmt.Sprintf("bot detected after %d attempts (last redirect: %d to %q)",
		e.Attempts, e.LastStatus, e.Location)
}

// Is reports whether target is ErrBotDetected.
func (e *BotDetectedError) Is(target error) bool {
	return target == ErrBotDetected
}

// TransportError is a network failure or an unexpected HTTP status.
type TransportError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Status     string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport error (status %d): %s: %v", e.StatusCode, e.Status, e.Err)
	}
	return fmt.Sprintf("transport error (status %d): %s", e.StatusCode, e.Status)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// isRedirect reports whether status is one of the redirect codes the source
// uses for its bot challenge.
func isRedirect(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

package backend

import (
	"errors"
	"fmt"
)

// ErrNoActiveRide is the terminal "nothing to track" signal. The poller stops
// on it without surfacing an error to the user. It is deliberately a separate
// sentinel so callers never have to inspect HTTP status codes.
var ErrNoActiveRide = errors.New("no active ride")

// APIError carries a decoded platform error response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform api: %s (http %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("platform api: http %d", e.StatusCode)
}

// UserMessage returns the server-provided text when present, so the bot can
// show it verbatim, with a generic fallback otherwise.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "запрос отклонён сервером"
}

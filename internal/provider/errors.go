package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidates is returned when the sequencer is handed no usable
	// credential at all.
	ErrNoCandidates = errors.New("no provider credentials configured")
	// ErrCandidatesExhausted wraps the last key/quota failure once every
	// candidate has been tried.
	ErrCandidatesExhausted = errors.New("all provider credentials exhausted")
)

// Cause is the nested, provider-specific reason attached to an error
// response (for Gemini, the first ErrorInfo detail).
type Cause struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error is a failed call as reported by an upstream AI provider.
type Error struct {
	Provider string
	Status   int    // HTTP status of the response
	Code     string // provider status string, e.g. "PERMISSION_DENIED"
	Message  string
	Cause    *Cause
	Body     string // raw response body, truncated
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, msg)
}

// HTTPStatus returns the HTTP status of the failed response.
func (e *Error) HTTPStatus() int { return e.Status }

// CauseCode returns the nested cause code, if any.
func (e *Error) CauseCode() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Code
}

// ResponseBody returns the raw response body.
func (e *Error) ResponseBody() string { return e.Body }

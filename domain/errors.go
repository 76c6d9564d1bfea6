package domain

import "errors"

// Error kinds surfaced across the service boundary. Wrap them with
// fmt.Errorf("%w: ...") and classify with errors.Is.
var (
	// ErrInvalidInput is a caller error: malformed, missing or conflicting fields
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means no live session exists with the given identifier
	ErrNotFound = errors.New("session not found")
	// ErrTranscriptUnavailable is any ingestion-side provider failure
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
	// ErrAnsweringUnavailable is any query-side provider failure
	ErrAnsweringUnavailable = errors.New("answering unavailable")
)

// Error codes reported to clients
const (
	CodeInvalidInput          = "invalid_input"
	CodeNotFound              = "not_found"
	CodeTranscriptUnavailable = "transcript_unavailable"
	CodeAnsweringUnavailable  = "answering_unavailable"
	CodeInternal              = "internal_error"
	CodeUnauthorized          = "unauthorized"
)

// Code classifies err into one of the client-facing error codes
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTranscriptUnavailable):
		return CodeTranscriptUnavailable
	case errors.Is(err, ErrAnsweringUnavailable):
		return CodeAnsweringUnavailable
	default:
		return CodeInternal
	}
}

// Message is the client-facing text for an error code. Provider error text
// is never exposed.
func Message(code string) string {
	switch code {
	case CodeInvalidInput:
		return "The request is malformed or incomplete"
	case CodeNotFound:
		return "No session exists with that identifier"
	case CodeTranscriptUnavailable:
		return "The transcript could not be obtained"
	case CodeAnsweringUnavailable:
		return "The answering service is unavailable"
	case CodeUnauthorized:
		return "A valid bearer token is required"
	default:
		return "An internal error occurred"
	}
}

package ingest

import "errors"

// Rejection errors. Each maps to a 400 response with a stable message.
var (
	// ErrInvalidRequest is returned when the body is empty, not a JSON
	// object, or an empty object.
	ErrInvalidRequest = errors.New("ingest: invalid request")

	// ErrInvalidID is returned when the id is absent, not a string, or not
	// UUID-shaped.
	ErrInvalidID = errors.New("ingest: invalid id")

	// ErrInvalidReadings is returned when readings is absent, not an array,
	// or empty.
	ErrInvalidReadings = errors.New("ingest: invalid readings")

	// ErrDuplicateRequest is returned when the exact payload was accepted before.
	ErrDuplicateRequest = errors.New("ingest: duplicate request")
)

// IsRejection reports whether err is a caller error rather than a storage
// or internal failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidReadings) ||
		errors.Is(err, ErrDuplicateRequest)
}

// Client-facing rejection messages.
const (
	MessageInvalidRequest   = "Invalid request"
	MessageInvalidID        = "Invalid id"
	MessageInvalidReadings  = "Invalid readings"
	MessageDuplicateRequest = "Duplicate request"
	MessageInternalError    = "Internal error"
)

// RejectionMessage returns the stable client-facing message for err.
// Anything that is not a rejection maps to MessageInternalError.
func RejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return MessageInvalidRequest
	case errors.Is(err, ErrInvalidID):
		return MessageInvalidID
	case errors.Is(err, ErrInvalidReadings):
		return MessageInvalidReadings
	case errors.Is(err, ErrDuplicateRequest):
		return MessageDuplicateRequest
	default:
		return MessageInternalError
	}
}
